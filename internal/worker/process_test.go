package worker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

func envMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, entry := range env {
		key, value, _ := strings.Cut(entry, "=")
		out[key] = value
	}
	return out
}

func TestBuildEnvOverlaysWorkerVariables(t *testing.T) {
	sep := string(os.PathListSeparator)
	base := []string{
		"HOME=/home/kid",
		"PATH=/usr/bin",
		"PYTHONPATH=/existing",
		"PYTHONUNBUFFERED=0",
	}
	runtime := RuntimePaths{
		PythonPath:   filepath.Join("/rt", "venv", "bin", "python3"),
		WorkerScript: filepath.Join("/app", "python-worker", "worker.py"),
		FFmpegPath:   "/rt/bin/ffmpeg",
	}

	env := envMap(buildEnv(base, runtime))

	assert.Equal(t, "/home/kid", env["HOME"])
	assert.Equal(t, "1", env["PYTHONUNBUFFERED"])
	assert.Equal(t, filepath.Join("/app", "python-worker", "src")+sep+"/existing", env["PYTHONPATH"])
	assert.Equal(t, filepath.Join("/rt", "venv", "bin")+sep+"/usr/bin", env["PATH"])
	assert.Equal(t, filepath.Join("/rt", "venv", "bin", "demucs"), env["AIYAAL_DEMUCS_PATH"])
	assert.Equal(t, "/rt/bin/ffmpeg", env["AIYAAL_FFMPEG_PATH"])
	assert.Equal(t, "yap", env["AIYAAL_YAP_PATH"])
}

func TestBuildEnvDoesNotDuplicateKeys(t *testing.T) {
	env := buildEnv([]string{"PATH=/usr/bin", "AIYAAL_YAP_PATH=/old"}, RuntimePaths{
		PythonPath:   "python3",
		WorkerScript: "worker.py",
		YapPath:      "/new/yap",
	})

	count := 0
	for _, entry := range env {
		if strings.HasPrefix(entry, "AIYAAL_YAP_PATH=") {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, "/new/yap", envMap(env)["AIYAAL_YAP_PATH"])
	assert.Equal(t, "/usr/bin", envMap(env)["PATH"])
}

func TestRuntimePathsFromSettings(t *testing.T) {
	paths := RuntimePathsFromSettings(domain.Settings{
		PythonPath:   "/py",
		WorkerScript: "/w.py",
		FFmpegPath:   "/ff",
		YapPath:      "/yap",
		DemucsPath:   "/demucs",
	})
	assert.Equal(t, RuntimePaths{
		PythonPath:   "/py",
		WorkerScript: "/w.py",
		FFmpegPath:   "/ff",
		YapPath:      "/yap",
		DemucsPath:   "/demucs",
	}, paths)
}

func TestProcessErrorFormatting(t *testing.T) {
	err := &ProcessError{Stage: "spawn", Message: "python executable is not configured"}
	assert.Equal(t, "spawn: python executable is not configured", err.Error())

	err = &ProcessError{Stage: "wait", Message: "worker process exited", Command: "python3", Args: []string{"worker.py"}, ExitCode: 2}
	assert.Equal(t, "wait: worker process exited (cmd=python3 worker.py exit=2)", err.Error())
}
