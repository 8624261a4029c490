package backend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/me/tempo/pkg/model"
)

// ShellBackend runs jobs as local OS processes via "sh -c". The submission's
// Args string is the command line; cycle and attempt metadata are exported as
// TEMPO_* environment variables.
type ShellBackend struct {
	logger  *slog.Logger
	workDir string
	reports chan *Report

	mu      sync.Mutex
	running map[string]*exec.Cmd // instance id -> live process
}

// NewShellBackend creates a ShellBackend rooted at workDir.
// If workDir is empty, os.TempDir() is used.
func NewShellBackend(workDir string, logger *slog.Logger) *ShellBackend {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &ShellBackend{
		workDir: workDir,
		logger:  logger.With("component", "shell-backend"),
		reports: make(chan *Report, 256),
		running: make(map[string]*exec.Cmd),
	}
}

// Type returns model.JobTypeShell.
func (b *ShellBackend) Type() model.JobType {
	return model.JobTypeShell
}

// Reports returns the channel terminal results are delivered on.
func (b *ShellBackend) Reports() <-chan *Report {
	return b.reports
}

// Submit starts the job asynchronously. The process runs in its own working
// directory under workDir and reports its outcome when it exits.
func (b *ShellBackend) Submit(ctx context.Context, sub *Submission) error {
	command := sub.Args
	if command == "" {
		return fmt.Errorf("instance %s: empty command", sub.InstanceID)
	}

	runDir := filepath.Join(b.workDir, sub.CycleID, fmt.Sprintf("%s-%d", sub.TaskID, sub.Attempt))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("instance %s: create run dir: %w", sub.InstanceID, err)
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = runDir
	cmd.Env = append(os.Environ(),
		"TEMPO_TASK_ID="+sub.TaskID,
		"TEMPO_CYCLE_ID="+sub.CycleID,
		fmt.Sprintf("TEMPO_ATTEMPT=%d", sub.Attempt),
	)
	if sub.MirrorID != "" {
		cmd.Env = append(cmd.Env, "TEMPO_MIRROR_ID="+sub.MirrorID)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now().UTC()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("instance %s: start command: %w", sub.InstanceID, err)
	}

	b.mu.Lock()
	b.running[sub.InstanceID] = cmd
	b.mu.Unlock()

	b.logger.Debug("job started",
		"instance_id", sub.InstanceID,
		"task_id", sub.TaskID,
		"pid", cmd.Process.Pid,
	)

	go b.wait(sub, cmd, started, &stderr)
	return nil
}

// wait blocks until the process exits and delivers the terminal report.
func (b *ShellBackend) wait(sub *Submission, cmd *exec.Cmd, started time.Time, stderr *bytes.Buffer) {
	runErr := cmd.Wait()
	finished := time.Now().UTC()

	b.mu.Lock()
	delete(b.running, sub.InstanceID)
	b.mu.Unlock()

	report := &Report{
		InstanceID: sub.InstanceID,
		Outcome:    model.OutcomeSuccess,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if runErr != nil {
		report.Outcome = model.OutcomeFailure
		report.Detail = runErr.Error()
		if msg := lastLine(stderr.String()); msg != "" {
			report.Detail = fmt.Sprintf("%s: %s", runErr, msg)
		}
	}

	b.logger.Debug("job finished",
		"instance_id", sub.InstanceID,
		"outcome", report.Outcome,
		"duration", finished.Sub(started),
	)
	b.reports <- report
}

// Kill sends SIGKILL to the instance's process. The report still arrives
// through the normal wait path once the process dies.
func (b *ShellBackend) Kill(_ context.Context, instanceID string) error {
	b.mu.Lock()
	cmd, ok := b.running[instanceID]
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("instance %s: no running process", instanceID)
	}
	b.logger.Info("killing job", "instance_id", instanceID, "pid", cmd.Process.Pid)
	return cmd.Process.Kill()
}

// lastLine returns the final non-empty line of s, trimmed.
func lastLine(s string) string {
	lines := bytes.Split(bytes.TrimSpace([]byte(s)), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
