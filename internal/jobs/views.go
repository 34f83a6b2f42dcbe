package jobs

import (
	"math"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

// ActiveTask returns the most recently started aggregate.
func ActiveTask(state State) (domain.TaskAggregate, bool) {
	if state.ActiveTaskID == "" {
		return domain.TaskAggregate{}, false
	}
	return state.Task(state.ActiveTaskID)
}

// AverageProgress is the rounded mean progress of the active aggregate's jobs.
func AverageProgress(state State) int {
	task, ok := ActiveTask(state)
	if !ok || len(task.Jobs) == 0 {
		return 0
	}
	total := lo.SumBy(task.Jobs, func(job domain.JobRecord) int { return job.ProgressPct })
	return int(math.Round(float64(total) / float64(len(task.Jobs))))
}

// SortedJobs returns a copy of jobs ordered by display name. Equal names keep
// their insertion order.
func SortedJobs(jobs []domain.JobRecord) []domain.JobRecord {
	out := make([]domain.JobRecord, len(jobs))
	copy(out, jobs)

	// Collator buffers are not safe for concurrent use.
	c := collate.New(language.Und)
	sort.SliceStable(out, func(i, j int) bool {
		return c.CompareString(out[i].FileName, out[j].FileName) < 0
	})
	return out
}

// TaskList returns every aggregate in creation order.
func TaskList(state State) []domain.TaskAggregate {
	return lo.FilterMap(state.TaskOrder, func(id string, _ int) (domain.TaskAggregate, bool) {
		return state.Task(id)
	})
}

// CountJobs tallies the task's jobs by status.
func CountJobs(task domain.TaskAggregate) map[domain.JobStatus]int {
	return lo.CountValuesBy(task.Jobs, func(job domain.JobRecord) domain.JobStatus {
		return job.Status
	})
}
