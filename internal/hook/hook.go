package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"mivta/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Job describes a finished correction handed to hooks.
type Job struct {
	Input     string
	Output    string
	Summary   string
	Corrected int
	Total     int
	Timestamp time.Time
}

// Runner executes hooks with per-hook cooldown.
type Runner struct {
	logger   *logrus.Logger
	mu       sync.Mutex
	lastRun  map[*config.HookConfig]time.Time
	hostname string
}

func NewRunner(logger *logrus.Logger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		logger:   logger,
		lastRun:  map[*config.HookConfig]time.Time{},
		hostname: host,
	}
}

// ShouldRun returns whether cooldown allows hk to fire again.
func (r *Runner) ShouldRun(hk *config.HookConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hk.CooldownSec <= 0 {
		return true
	}
	last, ok := r.lastRun[hk]
	return !ok || time.Since(last).Seconds() >= hk.CooldownSec
}

// Run executes hk with the job summary as its last argument.
func (r *Runner) Run(ctx context.Context, hk *config.HookConfig, job Job) error {
	r.mu.Lock()
	r.lastRun[hk] = time.Now()
	r.mu.Unlock()

	if hk.Command == "" {
		return fmt.Errorf("hook has no command")
	}
	args := append([]string{}, hk.Args...)
	if len(args) == 0 && hk.ArgsLine != "" {
		parsed, err := ParseArgs(hk.ArgsLine)
		if err != nil {
			return fmt.Errorf("parse args_line: %w", err)
		}
		args = parsed
	}
	args = append(args, strings.TrimSpace(job.Summary))

	runCtx := ctx
	if hk.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(float64(time.Second)*hk.TimeoutSec))
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, hk.Command, args...)
	cmd.Env = os.Environ()
	for k, v := range hk.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env,
		"MIVTA_INPUT="+job.Input,
		"MIVTA_OUTPUT="+job.Output,
		"MIVTA_SUMMARY="+job.Summary,
		"MIVTA_CORRECTED="+strconv.Itoa(job.Corrected),
		"MIVTA_TOTAL="+strconv.Itoa(job.Total),
		"MIVTA_HOSTNAME="+r.hostname,
	)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		r.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// Dispatch runs every hook selected for job, honouring cooldowns. Failures
// are logged, not returned.
func (r *Runner) Dispatch(ctx context.Context, cfg *config.Config, job Job) int {
	ran := 0
	for _, hk := range Select(cfg, job.Corrected > 0) {
		if !r.ShouldRun(hk) {
			r.logger.Debugf("hook %s skipped (cooldown)", hk.Command)
			continue
		}
		if err := r.Run(ctx, hk, job); err != nil {
			r.logger.Errorf("hook %s: %v", hk.Command, err)
			continue
		}
		ran++
	}
	return ran
}

// ParseArgs allows hook args to be configured as a single string.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

// Select returns the hooks whose trigger matches the outcome. An empty
// trigger means corrected.
func Select(cfg *config.Config, corrected bool) []*config.HookConfig {
	var out []*config.HookConfig
	for i := range cfg.Hooks {
		hk := &cfg.Hooks[i]
		switch strings.ToLower(strings.TrimSpace(hk.On)) {
		case config.HookOnAny:
			out = append(out, hk)
		case config.HookOnClean:
			if !corrected {
				out = append(out, hk)
			}
		case "", config.HookOnCorrected:
			if corrected {
				out = append(out, hk)
			}
		}
	}
	return out
}
