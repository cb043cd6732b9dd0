package hook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mivta/internal/config"
	"mivta/internal/logging"
)

func TestShouldRunCooldown(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Hooks = []config.HookConfig{{
		Command:     "/bin/echo",
		CooldownSec: 0.2,
	}}
	hk := &cfg.Hooks[0]
	r := NewRunner(logging.NewTestLogger())

	if !r.ShouldRun(hk) {
		t.Fatalf("first call should run")
	}
	if err := r.Run(context.Background(), hk, Job{Summary: "test", Timestamp: time.Now()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.ShouldRun(hk) {
		t.Fatalf("cooldown should block immediate subsequent run")
	}
	time.Sleep(time.Duration(hk.CooldownSec*float64(time.Second)) + 20*time.Millisecond)
	if !r.ShouldRun(hk) {
		t.Fatalf("should run after cooldown")
	}
}

func TestRunPassesEnv(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "env.txt")
	cfg, _ := config.Default()
	cfg.Hooks = []config.HookConfig{{
		Command:  "/bin/sh",
		ArgsLine: `-c 'echo "$MIVTA_OUTPUT $MIVTA_CORRECTED/$MIVTA_TOTAL $1" > "$DEST"' hook`,
		Env:      map[string]string{"DEST": out},
	}}
	r := NewRunner(logging.NewTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job := Job{Output: "/tmp/fixed.wav", Summary: "2 of 5", Corrected: 2, Total: 5}
	if n := r.Dispatch(ctx, cfg, job); n != 1 {
		t.Fatalf("expected one hook run, got %d", n)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "/tmp/fixed.wav 2/5 2 of 5" {
		t.Fatalf("unexpected hook output %q", got)
	}
}

func TestSelect(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Hooks = []config.HookConfig{
		{Command: "a"},
		{Command: "b", On: "clean"},
		{Command: "c", On: "any"},
		{Command: "d", On: "Corrected"},
	}
	names := func(hs []*config.HookConfig) string {
		var s []string
		for _, h := range hs {
			s = append(s, h.Command)
		}
		return strings.Join(s, ",")
	}
	if got := names(Select(cfg, true)); got != "a,c,d" {
		t.Fatalf("corrected: got %s", got)
	}
	if got := names(Select(cfg, false)); got != "b,c" {
		t.Fatalf("clean: got %s", got)
	}
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs(`--title "fixed take" -v`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(args) != 3 || args[1] != "fixed take" {
		t.Fatalf("unexpected args %q", args)
	}
	empty, _ := ParseArgs("  ")
	if len(empty) != 0 {
		t.Fatalf("expected empty args")
	}
}
