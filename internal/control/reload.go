package control

import (
	"fmt"

	"mivta/internal/config"

	"github.com/spf13/cobra"
)

// NewReloadCmd asks the daemon to reload config.
func NewReloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload config in the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := Call(cfg.Paths.SocketPath, Request{Op: "reload"}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("reload failed: %s", resp.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reload ok:", resp.Message)
			return nil
		},
	}
}
