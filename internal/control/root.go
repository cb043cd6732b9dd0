package control

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"mivta/internal/config"
	"mivta/internal/doctor"
	"mivta/internal/hook"

	"github.com/spf13/cobra"
)

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := Call(cfg.Paths.SocketPath, Request{Op: "status"}, &status); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "running: %v\nuptime: %.1fs\n", status.Running, status.UptimeSec)
			fmt.Fprintf(out, "trained: %d/%d (%.1f%%)\nmodel: %s\nthreshold: %.2f\njobs: %d\n",
				status.Trained, status.Total, status.Percentage, readyLabel(status.ModelReady), status.Threshold, status.Jobs)
			for _, h := range status.History {
				fmt.Fprintf(out, "%s  %s  %s\n", h.Timestamp.Format("15:04:05"), h.Output, h.Summary)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func readyLabel(ready bool) string {
	if ready {
		return "trained"
	}
	return "untrained (raw features)"
}

// NewHealthCmd pings the control socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the daemon control socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := Call(cfg.Paths.SocketPath, Request{Op: "health"}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("unhealthy: %s", resp.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			return tailFile(cmd.OutOrStdout(), cfg.Paths.LogPath, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(w io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			fmt.Fprintln(w, l)
		}
	}
	return nil
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cfg)
			failed := false
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					failed = true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}

// NewTestHookCmd runs the configured hooks with a sample job.
func NewTestHookCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-hook [summary]",
		Short: "Run configured hooks with a sample result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadWithLogger(*cfgPath)
			if err != nil {
				return err
			}
			corrected, _ := cmd.Flags().GetInt("corrected")
			job := hook.Job{
				Input:     "test-input.wav",
				Output:    "test-output.wav",
				Summary:   "test hook",
				Corrected: corrected,
				Total:     max(corrected, 1),
				Timestamp: time.Now(),
			}
			if len(args) == 1 {
				job.Summary = args[0]
			}
			selected := hook.Select(cfg, corrected > 0)
			if len(selected) == 0 {
				return fmt.Errorf("no hooks configured for this outcome")
			}
			r := hook.NewRunner(logger)
			for _, hk := range selected {
				if err := r.Run(cmd.Context(), hk, job); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ran %s\n", hk.Command)
			}
			return nil
		},
	}
	cmd.Flags().Int("corrected", 1, "corrected segment count to report")
	return cmd
}
