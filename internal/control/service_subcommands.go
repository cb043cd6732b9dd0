package control

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"mivta/internal/config"
	"mivta/internal/service"

	"github.com/spf13/cobra"
)

// NewServiceCmd manages the per-user service definition.
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the user service (launchd on macOS, systemd elsewhere)",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write the user service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env := make(map[string]string)
			for _, p := range envPairs {
				parts := strings.SplitN(p, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("bad env %q, want KEY=VAL", p)
				}
				env[parts[0]] = parts[1]
			}
			params := service.Params{
				Label:  service.Label,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			}
			path, err := service.Write(params)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "service written: %s\n", path)
			if runtime.GOOS == "darwin" {
				fmt.Fprintln(out, "Load:   launchctl load -w", path)
				fmt.Fprintf(out, "Start:  launchctl kickstart gui/$(id -u)/%s\n", params.Label)
				fmt.Fprintf(out, "Stop:   launchctl bootout gui/$(id -u)/%s\n", params.Label)
			} else {
				fmt.Fprintf(out, "Enable: systemctl --user daemon-reload && systemctl --user enable --now %s\n", params.Label)
				fmt.Fprintf(out, "Stop:   systemctl --user stop %s\n", params.Label)
			}
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set in the service (KEY=VAL)")
	return cmd
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the user service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := service.Path(service.Label)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s (if present); stop the running service manually\n", path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service definition path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := service.Status(service.Label)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "service: %s\n", path)
			if ok {
				fmt.Fprintln(out, "status: present")
			} else {
				fmt.Fprintln(out, "status: missing (install via: mivta service install)")
			}
			return nil
		},
	}
}
