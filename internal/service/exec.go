package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tracefold/workbench/internal/config"
	"github.com/tracefold/workbench/internal/domain/fact"
	"github.com/tracefold/workbench/internal/logger"
	"github.com/tracefold/workbench/internal/port/factstore"
)

// ErrCommandNotAllowed indicates argv[0] is not on the exec allowlist.
var ErrCommandNotAllowed = errors.New("command not in allowlist")

// ExecResult is the outcome of one sandboxed command run.
type ExecResult struct {
	Command   string        `json:"command"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out,omitempty"`
}

// ExecService runs allowlisted commands inside the workspace. Commands run
// without a shell, with a hard timeout, bounded output, and bounded
// concurrency.
type ExecService struct {
	cfg       config.Exec
	workspace string
	facts     factstore.Store
	sem       *semaphore.Weighted
}

// NewExecService creates an ExecService confined to the workspace root.
func NewExecService(cfg config.Exec, workspace string, facts factstore.Store) *ExecService {
	return &ExecService{
		cfg:       cfg,
		workspace: workspace,
		facts:     facts,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Run executes argv in the workspace. argv is passed to the OS directly; no
// shell interpretation happens, so pipes and redirections have no effect.
func (s *ExecService) Run(ctx context.Context, argv []string) (*ExecResult, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	if !s.allowed(argv[0]) {
		return nil, fmt.Errorf("%q: %w", argv[0], ErrCommandNotAllowed)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire exec slot: %w", err)
	}
	defer s.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...) //nolint:gosec // G204: argv[0] checked against the allowlist
	cmd.Dir = s.workspace

	maxBytes := int64(s.cfg.MaxOutputKB) * 1024
	var stdout, stderr limitedBuffer
	stdout.max = maxBytes
	stderr.max = maxBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Command:   strings.Join(argv, " "),
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
		TimedOut:  errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("run %q: %w", argv[0], err)
	}

	s.recordRun(ctx, result)
	slog.Info("command run",
		"command", argv[0],
		"exit_code", result.ExitCode,
		"duration", result.Duration,
		"timed_out", result.TimedOut,
		"tool", logger.Tool(ctx))
	return result, nil
}

// Allowlist returns the configured permitted commands.
func (s *ExecService) Allowlist() []string {
	return append([]string(nil), s.cfg.Allowlist...)
}

func (s *ExecService) allowed(name string) bool {
	for _, a := range s.cfg.Allowlist {
		if a == name {
			return true
		}
	}
	return false
}

func (s *ExecService) recordRun(ctx context.Context, r *ExecResult) {
	if s.facts == nil {
		return
	}
	detail := fmt.Sprintf("%s (exit %d, %s)", r.Command, r.ExitCode, r.Duration.Round(time.Millisecond))
	if err := s.facts.Append(ctx, fact.New(fact.KindCommandRun, "", detail)); err != nil {
		slog.Warn("append command fact failed", "error", err)
	}
}

// limitedBuffer keeps at most max bytes and drops the rest, recording that
// truncation happened.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil // swallow, keep the process writing
	}
	if int64(len(p)) > remaining {
		b.truncated = true
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string { return b.buf.String() }

var _ io.Writer = (*limitedBuffer)(nil)
