package control

import (
	"encoding/json"
	"fmt"

	"mivta/internal/pipeline"
	"mivta/internal/syllables"
	"mivta/internal/wavio"

	"github.com/spf13/cobra"
)

// NewTrainCmd groups reference training subcommands.
func NewTrainCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Record reference syllables and track progress",
	}
	cmd.AddCommand(newTrainStatusCmd(cfgPath))
	cmd.AddCommand(newTrainNextCmd(cfgPath))
	cmd.AddCommand(newTrainAddCmd(cfgPath))
	cmd.AddCommand(newTrainRecordCmd(cfgPath))
	cmd.AddCommand(newTrainResetCmd(cfgPath))
	return cmd
}

func openPipeline(cmd *cobra.Command, cfgPath string) (*pipeline.Pipeline, error) {
	cfg, logger, err := loadWithLogger(cfgPath)
	if err != nil {
		return nil, err
	}
	return pipeline.Open(cmd.Context(), cfg, logger)
}

func newTrainStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show training progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			st, err := p.Store.Status(cmd.Context())
			if err != nil {
				return err
			}
			trained, err := p.Store.Trained(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"status": st, "trained_labels": trained})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trained %d/%d (%.1f%%), %d remaining\n", st.Trained, st.Total, st.Percentage, st.Remaining)
			for _, l := range trained {
				fmt.Fprintf(out, "  %s  %s\n", l, syllables.Transliteration(l))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newTrainNextCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the next syllable to record",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			label, ok, err := p.Store.NextUntrained(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "all syllables trained")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  (%s)\n", label, syllables.Transliteration(label))
			return nil
		},
	}
}

func checkLabel(cmd *cobra.Command, label string) error {
	if force, _ := cmd.Flags().GetBool("force"); force {
		return nil
	}
	if _, ok := syllables.Lookup(label); !ok {
		return fmt.Errorf("%q is not in the syllable catalog (use --force to add it anyway)", label)
	}
	return nil
}

func newTrainAddCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <label> <wav>...",
		Short: "Add clean recordings of a syllable",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := args[0]
			if err := checkLabel(cmd, label); err != nil {
				return err
			}
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			for _, path := range args[1:] {
				audio, _, err := wavio.Read(path, p.Config.Audio.SampleRate)
				if err != nil {
					return err
				}
				if _, err := p.Corrector.Enroll(cmd.Context(), p.Store.WithAudio(audio), label, audio); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s as %s\n", path, label)
			}
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "allow labels outside the catalog")
	return cmd
}

func newTrainRecordCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record [label]",
		Short: "Record a syllable from the microphone (default: next untrained)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			var label string
			if len(args) == 1 {
				label = args[0]
				if err := checkLabel(cmd, label); err != nil {
					return err
				}
			} else {
				next, ok, err := p.Store.NextUntrained(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("all syllables trained; name a label to add more takes")
				}
				label = next
			}
			fmt.Fprintf(cmd.OutOrStdout(), "say: %s  (%s)\n", label, syllables.Transliteration(label))
			seconds, _ := cmd.Flags().GetFloat64("seconds")
			audio, err := recordTake(cmd, p.Config, p.Logger(), secondsDuration(seconds))
			if err != nil {
				return err
			}
			if _, err := p.Corrector.Enroll(cmd.Context(), p.Store.WithAudio(audio), label, audio); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s\n", label)
			return nil
		},
	}
	cmd.Flags().Float64("seconds", 1.5, "recording length")
	cmd.Flags().Bool("force", false, "allow labels outside the catalog")
	return cmd
}

func newTrainResetCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset [label]",
		Short: "Delete recordings of one syllable (or all with --all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if !all && len(args) == 0 {
				return fmt.Errorf("name a label or pass --all")
			}
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			if all {
				if err := p.Store.ResetAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all training data removed")
				return nil
			}
			if err := p.Store.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "reset every syllable")
	return cmd
}
