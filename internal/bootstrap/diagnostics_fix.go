package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/ragaeeb/al-iyaal-kids/internal/config"
	"github.com/ragaeeb/al-iyaal-kids/internal/diagnostics"
	"github.com/ragaeeb/al-iyaal-kids/internal/domain"
)

const (
	installCommandTimeout = 45 * time.Minute

	requirementsLockFile = "requirements.lock.txt"
	runtimeImportCheck   = "import demucs, torch, torchaudio, torchcodec"

	// envBasePython overrides the interpreter used to create the venv.
	envBasePython = "AIYAAL_BASE_PYTHON"
)

var basePythonCandidates = []string{"python3.14", "python3.13", "python3.12", "python3"}

type installOption struct {
	manager  string
	commands [][]string
}

// installer runs remediation commands. Its OS hooks are replaceable in tests.
type installer struct {
	goos     string
	run      func(name string, args ...string) error
	lookPath func(string) (string, error)
	getenv   func(string) string
	stat     func(string) (os.FileInfo, error)
	mkdirAll func(string, os.FileMode) error
	remove   func(string) error
}

func newInstaller() *installer {
	return &installer{
		goos:     goruntime.GOOS,
		run:      runCommand,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
		stat:     os.Stat,
		mkdirAll: os.MkdirAll,
		remove:   os.RemoveAll,
	}
}

// InstallOrFixDiagnostic applies a remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}
	if !diagnostics.Fixable(id) {
		return a.GetDiagnostics(), fmt.Errorf("%s cannot be repaired automatically; reinstall the app or fix the worker script path in settings", id)
	}

	settings, err := a.loadSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}

	settingsChanged := false
	var fixErr error

	switch id {
	case diagnostics.IDFFmpeg:
		fixErr = a.installer.installFFmpeg()
	case diagnostics.IDYap:
		fixErr = a.installer.installYap()
	case diagnostics.IDPython, diagnostics.IDDemucs:
		settings, settingsChanged, fixErr = a.installer.repairPythonRuntime(settings, a.runtimeDir)
	case diagnostics.IDRuntimeDir:
		if err := a.installer.mkdirAll(a.runtimeDir, 0o755); err != nil {
			fixErr = fmt.Errorf("create runtime directory %s: %w", a.runtimeDir, err)
		}
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
		a.logger.Info("settings updated by runtime repair", "item", id, "python", settings.PythonPath)
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		a.logger.Warn("diagnostic fix failed", "item", id, "error", fixErr)
		return report, fixErr
	}
	return report, nil
}

// ensureRuntimeBinOnPATH prepends <runtime>/bin, where bundled tools live.
func ensureRuntimeBinOnPATH(runtimeDir string) error {
	binDir := filepath.Join(runtimeDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func (i *installer) installFFmpeg() error {
	var options []installOption

	switch i.goos {
	case "windows":
		options = []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		options = []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		options = []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "ffmpeg"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}

	if err := i.runFirstSuccessfulInstall(options); err != nil {
		return fmt.Errorf("install ffmpeg: %w", err)
	}
	if err := i.requireToolsOnPath("ffmpeg"); err != nil {
		return fmt.Errorf("verify ffmpeg on PATH: %w", err)
	}
	return nil
}

// installYap installs the on-device transcription CLI. It is only published
// for macOS through Homebrew.
func (i *installer) installYap() error {
	if i.goos != "darwin" {
		return fmt.Errorf("yap is only available on macOS; set AIYAAL_YAP_PATH to a compatible binary")
	}

	options := []installOption{
		{manager: "brew", commands: [][]string{{"brew", "install", "finnvoor/tools/yap"}}},
	}
	if err := i.runFirstSuccessfulInstall(options); err != nil {
		return fmt.Errorf("install yap: %w", err)
	}
	if err := i.requireToolsOnPath("yap"); err != nil {
		return fmt.Errorf("verify yap on PATH: %w", err)
	}
	return nil
}

// repairPythonRuntime creates <runtime>/venv from the worker's locked
// requirements when missing, then makes sure the media packages import.
func (i *installer) repairPythonRuntime(settings domain.Settings, runtimeDir string) (domain.Settings, bool, error) {
	if strings.TrimSpace(runtimeDir) == "" {
		return settings, false, fmt.Errorf("runtime directory is not configured")
	}
	if err := i.mkdirAll(runtimeDir, 0o755); err != nil {
		return settings, false, fmt.Errorf("create runtime directory %s: %w", runtimeDir, err)
	}

	requirements := filepath.Join(filepath.Dir(settings.WorkerScript), requirementsLockFile)
	if _, err := i.stat(requirements); err != nil {
		return settings, false, fmt.Errorf("missing requirements lock file at %s", requirements)
	}

	venvDir := filepath.Join(runtimeDir, "venv")
	venvPython := venvPythonPath(venvDir, i.goos)
	if _, err := i.stat(venvPython); err != nil {
		if err := i.bootstrapVirtualenv(venvDir, venvPython, requirements); err != nil {
			return settings, false, err
		}
	}

	changed := false
	python := settings.PythonPath
	if _, err := i.stat(python); strings.TrimSpace(python) == "" || err != nil {
		python = venvPython
		settings.PythonPath = venvPython
		changed = true
	}

	if err := i.ensureRuntimePackages(python, requirements); err != nil {
		return settings, changed, err
	}
	return settings, changed, nil
}

func (i *installer) bootstrapVirtualenv(venvDir, venvPython, requirements string) error {
	candidates := basePythonCandidates
	if configured := strings.TrimSpace(i.getenv(envBasePython)); configured != "" {
		candidates = []string{configured}
	}

	attempts := make([]string, 0, len(candidates))
	for _, base := range candidates {
		if _, err := i.lookPath(base); err != nil && !filepath.IsAbs(base) {
			continue
		}
		if err := i.remove(venvDir); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear runtime venv directory %s: %w", venvDir, err)
		}

		err := i.runAll([][]string{
			{base, "-m", "venv", venvDir},
			{venvPython, "-m", "pip", "install", "--upgrade", "pip"},
			{venvPython, "-m", "pip", "install", "-r", requirements},
		})
		if err == nil {
			return nil
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", base, err))
	}

	if len(attempts) == 0 {
		return fmt.Errorf("no python interpreter found (tried: %s)", strings.Join(candidates, ", "))
	}
	return fmt.Errorf("bootstrap python runtime with all candidates failed: %s", strings.Join(attempts, " | "))
}

func (i *installer) ensureRuntimePackages(python, requirements string) error {
	if err := i.run(python, "-c", runtimeImportCheck); err == nil {
		return nil
	}
	if err := i.run(python, "-m", "pip", "install", "-r", requirements); err != nil {
		return fmt.Errorf("install runtime packages: %w", err)
	}
	return nil
}

func venvPythonPath(venvDir, goos string) string {
	if goos == "windows" {
		return filepath.Join(venvDir, "Scripts", "python.exe")
	}
	return filepath.Join(venvDir, "bin", "python3")
}

func (i *installer) runFirstSuccessfulInstall(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", i.goos)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !i.commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := i.runInstallCommands(option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func (i *installer) runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := i.runCommandWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func (i *installer) runAll(commands [][]string) error {
	for _, command := range commands {
		if err := i.run(command[0], command[1:]...); err != nil {
			return err
		}
	}
	return nil
}

func (i *installer) runCommandWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if i.commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := i.run(candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func (i *installer) commandAvailable(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func (i *installer) requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if !i.commandAvailable(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

// defaultRuntimeDir is the venv and bundled-tool root under the app directory.
func defaultRuntimeDir() string {
	return filepath.Join(config.AppDir(), "runtime")
}
