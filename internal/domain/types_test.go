package domain

import (
	"encoding/json"
	"testing"
)

// TestCloneKeepsEmptyLogs ensures a clone serializes exactly like its source.
func TestCloneKeepsEmptyLogs(t *testing.T) {
	task := TaskAggregate{
		TaskID:   "task-1",
		TaskKind: TaskKindFlag,
		Status:   TaskStatusQueued,
		Jobs: []JobRecord{
			{JobID: "v-a-srt", FileName: "a.srt", Status: JobStatusQueued, Logs: []string{}},
			{JobID: "v-b-srt", FileName: "b.srt", Status: JobStatusQueued},
		},
	}

	want, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	got, err := json.Marshal(task.Clone())
	if err != nil {
		t.Fatalf("marshal clone: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("clone serialized as %s, want %s", got, want)
	}
}

// TestCloneCopiesLogs ensures writes to a clone leave the source intact.
func TestCloneCopiesLogs(t *testing.T) {
	task := TaskAggregate{
		TaskID:  "task-1",
		Jobs:    []JobRecord{{JobID: "a", Logs: []string{"first"}}},
		Summary: &TaskSummary{OK: 1},
	}

	clone := task.Clone()
	clone.Jobs[0].Logs[0] = "changed"
	clone.Summary.OK = 5

	if task.Jobs[0].Logs[0] != "first" {
		t.Fatalf("source logs changed: %v", task.Jobs[0].Logs)
	}
	if task.Summary.OK != 1 {
		t.Fatalf("source summary changed: %+v", task.Summary)
	}
}
