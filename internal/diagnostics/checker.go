package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

// Diagnostic item ids. Fixers in the desktop app switch on these.
const (
	IDPython        = "python"
	IDWorkerScript  = "worker_script"
	IDWorkerPackage = "worker_package"
	IDFFmpeg        = "tool_ffmpeg"
	IDYap           = "tool_yap"
	IDDemucs        = "tool_demucs"
	IDRuntimeDir    = "runtime_dir"
)

// Fixable reports whether id has an automatic remediation. The worker script
// and package ship with the app and can only be restored by reinstalling.
func Fixable(id string) bool {
	return id != IDWorkerScript && id != IDWorkerPackage
}

// WorkerPackage is the Python package the worker script imports from src/.
const WorkerPackage = "al_iyaal_worker"

// Checker validates the worker runtime: interpreter, script, tools and the
// writable runtime directory.
type Checker struct {
	runtimeDir string

	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(runtimeDir string) *Checker {
	return &Checker{
		runtimeDir: runtimeDir,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkExecutable(IDPython, "Python", settings.PythonPath,
			"Repair the runtime to create the Python environment, or set AIYAAL_PYTHON_PATH."),
		c.checkWorkerScript(settings.WorkerScript),
		c.checkWorkerPackage(settings.WorkerScript),
		c.checkExecutable(IDFFmpeg, "ffmpeg", lo.CoalesceOrEmpty(settings.FFmpegPath, "ffmpeg"),
			"Install ffmpeg or set AIYAAL_FFMPEG_PATH."),
		c.checkExecutable(IDYap, "yap", lo.CoalesceOrEmpty(settings.YapPath, "yap"),
			"Install yap to generate subtitles, or set AIYAAL_YAP_PATH."),
		c.checkExecutable(IDDemucs, "demucs", DemucsPath(settings),
			"Repair the runtime to install demucs into the Python environment."),
		c.checkRuntimeDir(),
	}
	for i := range items {
		items[i].Fixable = items[i].Status == domain.DiagnosticStatusFail && Fixable(items[i].ID)
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: lo.SomeBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

// DemucsPath returns the configured demucs binary or the one installed next
// to the Python interpreter.
func DemucsPath(settings domain.Settings) string {
	if path := strings.TrimSpace(settings.DemucsPath); path != "" {
		return path
	}
	if strings.TrimSpace(settings.PythonPath) == "" {
		return "demucs"
	}
	return filepath.Join(filepath.Dir(settings.PythonPath), "demucs")
}

// checkExecutable resolves bare names on PATH and stats explicit paths.
func (c *Checker) checkExecutable(id, name, path, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	path = strings.TrimSpace(path)
	if path == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s path is empty.", name)
		item.Hint = hint
		return item
	}

	if !strings.ContainsRune(path, filepath.Separator) && !strings.ContainsRune(path, '/') {
		resolved, err := c.lookPath(path)
		if err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Tool not found in PATH: %s", path)
			item.Hint = hint
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", resolved)
		return item
	}

	info, err := c.stat(path)
	switch {
	case err != nil && IsNotExist(err):
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s does not exist: %s", name, path)
		item.Hint = hint
	case err != nil:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot access %s: %s", name, path)
		item.Hint = "Check filesystem permissions."
	case info.IsDir():
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s points to a directory: %s", name, path)
		item.Hint = hint
	default:
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", path)
	}
	return item
}

func (c *Checker) checkWorkerScript(script string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: IDWorkerScript, Name: "Worker script"}

	if strings.TrimSpace(script) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Worker script path is empty."
		item.Hint = "Set the path to python-worker/worker.py in settings."
		return item
	}

	info, err := c.stat(script)
	if err != nil || info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Failed to locate python worker entrypoint: %s", script)
		item.Hint = "Point settings at the python-worker/worker.py shipped with the app."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Worker script found: %s", script)
	return item
}

// checkWorkerPackage verifies <script dir>/src holds the worker package.
func (c *Checker) checkWorkerPackage(script string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: IDWorkerPackage, Name: "Worker package"}

	srcDir := filepath.Join(filepath.Dir(script), "src")
	entries, err := c.readDir(srcDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read worker source directory: %s", srcDir)
		item.Hint = "Reinstall the app so python-worker/src is present next to worker.py."
		return item
	}

	for _, entry := range entries {
		if entry.IsDir() && entry.Name() == WorkerPackage {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Worker package found in %s", srcDir)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("Worker package %s not found in %s", WorkerPackage, srcDir)
	item.Hint = "Reinstall the app so python-worker/src is present next to worker.py."
	return item
}

// checkRuntimeDir validates runtime directory existence and write access.
func (c *Checker) checkRuntimeDir() domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: IDRuntimeDir, Name: "Runtime directory"}

	dir := c.runtimeDir
	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Runtime directory is empty."
		item.Hint = "The app could not resolve a per-user data directory."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create runtime directory: %s", dir)
		item.Hint = "Adjust filesystem permissions for your home directory."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Runtime directory is not writable: %s", dir)
		item.Hint = "Adjust filesystem permissions for your home directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	runtimeDir string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		runtimeDir: runtimeDir,
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
