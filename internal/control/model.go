package control

import (
	"encoding/json"
	"errors"
	"fmt"

	"mivta/internal/embedding"
	"mivta/internal/features"

	"github.com/spf13/cobra"
)

// NewModelCmd groups embedding model subcommands.
func NewModelCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Fit, inspect or reset the embedding model",
	}
	cmd.AddCommand(newModelFitCmd(cfgPath))
	cmd.AddCommand(newModelShowCmd(cfgPath))
	cmd.AddCommand(newModelResetCmd(cfgPath))
	return cmd
}

func newModelFitCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Train the projection on all stored recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			corpus, err := p.Store.Corpus(cmd.Context())
			if err != nil {
				return err
			}
			opts := embedding.OptionsFromConfig(p.Config)
			if cmd.Flags().Changed("epochs") {
				opts.Epochs, _ = cmd.Flags().GetInt("epochs")
			}
			res, err := p.Model.Train(cmd.Context(), corpus, opts)
			if errors.Is(err, embedding.ErrInsufficientData) {
				return fmt.Errorf("need recordings of at least two syllables (have %d labels)", res.Labels)
			}
			if err != nil {
				return err
			}
			p.Model.RefreshReferences()
			if _, err := p.Store.SaveParams(cmd.Context()); err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trained on %d samples / %d labels over %d epochs, loss %.4f (generation %d)\n",
				res.Samples, res.Labels, res.Epochs, res.Loss, res.Generation)
			return nil
		},
	}
	cmd.Flags().Int("epochs", 0, "override model.epochs")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

type modelInfo struct {
	Trained      bool    `json:"trained"`
	Generation   uint64  `json:"generation"`
	Threshold    float64 `json:"threshold"`
	References   int     `json:"references"`
	Stale        int     `json:"stale"`
	HiddenDim    int     `json:"hidden_dim,omitempty"`
	EmbeddingDim int     `json:"embedding_dim,omitempty"`
}

func newModelShowCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show model state",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			snap := p.Model.Snapshot()
			info := modelInfo{
				Trained:    snap.Trained(),
				Generation: snap.Generation(),
				Threshold:  snap.Threshold(),
				References: len(snap.References()),
			}
			for _, r := range snap.References() {
				if snap.Stale(r) {
					info.Stale++
				}
			}
			if params, ok := p.Model.Params(); ok {
				info.HiddenDim = params.HiddenDim
				info.EmbeddingDim = params.EmbeddingDim
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model: %s\ngeneration: %d\nthreshold: %.2f\nreferences: %d (%d stale)\n",
				readyLabel(info.Trained), info.Generation, info.Threshold, info.References, info.Stale)
			if info.Trained {
				fmt.Fprintf(out, "projection: %d -> %d -> %d\n", features.Dim, info.HiddenDim, info.EmbeddingDim)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newModelResetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the trained projection (references are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer p.Close()
			if err := p.Store.ClearParams(cmd.Context()); err != nil {
				return err
			}
			p.Model.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "model reset; comparisons use raw features until the next fit")
			return nil
		},
	}
}
