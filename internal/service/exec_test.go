package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tracefold/workbench/internal/config"
	"github.com/tracefold/workbench/internal/domain/fact"
	"github.com/tracefold/workbench/internal/service"
)

func newExecService(t *testing.T, cfg config.Exec) (*service.ExecService, *memFacts) {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxOutputKB == 0 {
		cfg.MaxOutputKB = 64
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 2
	}
	facts := &memFacts{}
	return service.NewExecService(cfg, t.TempDir(), facts), facts
}

func TestRunAllowedCommand(t *testing.T) {
	svc, facts := newExecService(t, config.Exec{Allowlist: []string{"echo"}})

	res, err := svc.Run(context.Background(), []string{"echo", "hello"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q", res.Stdout)
	}

	kinds := facts.kinds()
	if len(kinds) != 1 || kinds[0] != fact.KindCommandRun {
		t.Errorf("facts = %v, want [command_run]", kinds)
	}
}

func TestRunDisallowedCommand(t *testing.T) {
	svc, facts := newExecService(t, config.Exec{Allowlist: []string{"echo"}})

	if _, err := svc.Run(context.Background(), []string{"rm", "-rf", "/"}); !errors.Is(err, service.ErrCommandNotAllowed) {
		t.Fatalf("Run() error = %v, want ErrCommandNotAllowed", err)
	}
	if len(facts.kinds()) != 0 {
		t.Error("rejected command recorded a fact")
	}
}

func TestRunEmptyCommand(t *testing.T) {
	svc, _ := newExecService(t, config.Exec{Allowlist: []string{"echo"}})
	if _, err := svc.Run(context.Background(), nil); err == nil {
		t.Error("Run(nil) succeeded")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	svc, _ := newExecService(t, config.Exec{Allowlist: []string{"false"}})

	res, err := svc.Run(context.Background(), []string{"false"})
	if err != nil {
		t.Fatalf("Run() error = %v, want exit code in result", err)
	}
	if res.ExitCode == 0 {
		t.Errorf("ExitCode = 0, want non-zero")
	}
}

func TestRunNoShellInterpretation(t *testing.T) {
	svc, _ := newExecService(t, config.Exec{Allowlist: []string{"echo"}})

	// The pipe must arrive as a literal argument, not spawn a second process.
	res, err := svc.Run(context.Background(), []string{"echo", "a", "|", "cat"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.Stdout, "|") {
		t.Errorf("Stdout = %q, want literal pipe character", res.Stdout)
	}
}

func TestRunTimeout(t *testing.T) {
	svc, _ := newExecService(t, config.Exec{
		Allowlist: []string{"sleep"},
		Timeout:   100 * time.Millisecond,
	})

	start := time.Now()
	res, err := svc.Run(context.Background(), []string{"sleep", "10"})
	elapsed := time.Since(start)

	if elapsed > 5*time.Second {
		t.Fatalf("Run() took %s, timeout not enforced", elapsed)
	}
	// Killed by the deadline: either an error or a result marked timed out.
	if err == nil && !res.TimedOut {
		t.Errorf("Run() = %+v, want timed-out result", res)
	}
}

func TestRunOutputCapped(t *testing.T) {
	svc, _ := newExecService(t, config.Exec{
		Allowlist:   []string{"yes"},
		Timeout:     500 * time.Millisecond,
		MaxOutputKB: 1,
	})

	res, err := svc.Run(context.Background(), []string{"yes"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Stdout) > 1024 {
		t.Errorf("Stdout length = %d, want <= 1024", len(res.Stdout))
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestAllowlistCopy(t *testing.T) {
	svc, _ := newExecService(t, config.Exec{Allowlist: []string{"echo"}})
	list := svc.Allowlist()
	list[0] = "mutated"
	if svc.Allowlist()[0] != "echo" {
		t.Error("Allowlist() returned internal slice")
	}
}
