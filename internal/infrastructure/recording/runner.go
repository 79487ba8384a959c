package recording

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"streamcorder/internal/core/domain"
)

// ProcessHandle is a started encoder subprocess.
type ProcessHandle interface {
	// Wait blocks until the process exits.
	Wait() error
	// Terminate asks the process to exit gracefully.
	Terminate() error
	// Kill forcefully ends the process.
	Kill() error
	Pid() int
}

// Runner spawns encoder subprocesses. Abstracted so the supervisor can
// be tested without a real encoder binary.
type Runner interface {
	Start(argv []string, logPath string) (ProcessHandle, error)
}

// BuildCommand resolves a stream's encoder template into an argv slice:
// INPUT_URL is substituted with the source URL and OUTPUT_FILE with the
// session's output path. Templates without an OUTPUT_FILE token get the
// output path appended as the final argument.
func BuildCommand(stream domain.StreamConfig, outputPath string) []string {
	argv := strings.Fields(stream.EncoderTemplate)

	sawOutput := false
	for i, arg := range argv {
		if strings.Contains(arg, domain.InputPlaceholder) {
			argv[i] = strings.ReplaceAll(arg, domain.InputPlaceholder, stream.InputURL())
		}
		if strings.Contains(arg, "OUTPUT_FILE") {
			argv[i] = strings.ReplaceAll(argv[i], "OUTPUT_FILE", outputPath)
			sawOutput = true
		}
	}
	if !sawOutput {
		argv = append(argv, outputPath)
	}
	return argv
}

type execRunner struct{}

// NewExecRunner returns the os/exec based Runner used in production.
func NewExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Start(argv []string, logPath string) (ProcessHandle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", domain.ErrSpawnFailed)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open log %s: %v", domain.ErrSpawnFailed, logPath, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
	}

	return &execHandle{cmd: cmd, logFile: logFile}, nil
}

type execHandle struct {
	cmd     *exec.Cmd
	logFile *os.File
}

func (h *execHandle) Wait() error {
	defer h.logFile.Close()
	return h.cmd.Wait()
}

func (h *execHandle) Terminate() error {
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() error {
	return h.cmd.Process.Kill()
}

func (h *execHandle) Pid() int {
	return h.cmd.Process.Pid
}
