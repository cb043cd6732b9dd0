package control

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSetupCmd prepares state directories, the config file and the store.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create state dirs, config and reference store",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: %s\nstate:  %s\nstore:  %s\n", p.Config.Paths.ConfigPath, p.Config.Paths.StateDir, p.Config.Paths.StoreDir)
			st, err := p.Store.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "trained %d/%d syllables\n", st.Trained, st.Total)
			if label, ok, err := p.Store.NextUntrained(cmd.Context()); err == nil && ok {
				fmt.Fprintf(out, "next: mivta train record %s\n", label)
			}
			return nil
		},
	}
}
