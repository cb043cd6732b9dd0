package control

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mivta/internal/capture"
	"mivta/internal/config"
	"mivta/internal/corrector"
	"mivta/internal/logging"
	"mivta/internal/pipeline"
	"mivta/internal/syllables"
	"mivta/internal/wavio"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func loadWithLogger(cfgPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.Configure(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func thresholdFlag(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("threshold") {
		return nil
	}
	t, _ := cmd.Flags().GetFloat64("threshold")
	return &t
}

// NewAnalyzeCmd assesses every syllable of a WAV file without changing it.
func NewAnalyzeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <wav>",
		Short: "Assess each syllable of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadWithLogger(*cfgPath)
			if err != nil {
				return err
			}
			p, err := pipeline.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()
			results, err := p.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(results)
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no syllables detected")
				return nil
			}
			for _, r := range results {
				label := r.MatchedLabel
				if label == "" {
					label = "-"
				}
				fmt.Fprintf(out, "%3d  %6.3fs-%6.3fs  %-6s %.2f  %s\n", r.Index, r.Start, r.End, label, r.Score, r.Message)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

// NewCorrectCmd replaces mispronounced syllables and writes the result.
func NewCorrectCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct <wav>",
		Short: "Correct mispronounced syllables in a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("out")
			jsonOut, _ := cmd.Flags().GetBool("json")
			viaDaemon, _ := cmd.Flags().GetBool("daemon")
			in, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if outPath != "" {
				if outPath, err = filepath.Abs(outPath); err != nil {
					return err
				}
			}

			if viaDaemon {
				cfg, err := config.Load(*cfgPath)
				if err != nil {
					return err
				}
				var resp CorrectResponse
				req := Request{Op: "correct", Path: in, Output: outPath, Threshold: thresholdFlag(cmd)}
				if err := Call(cfg.Paths.SocketPath, req, &resp); err != nil {
					return err
				}
				if !resp.OK {
					return fmt.Errorf("daemon: %s", resp.Message)
				}
				return printCorrection(cmd, resp.Output, resp.Report, jsonOut)
			}

			cfg, logger, err := loadWithLogger(*cfgPath)
			if err != nil {
				return err
			}
			p, err := pipeline.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()
			report, written, err := p.CorrectFile(cmd.Context(), in, outPath, p.Threshold(thresholdFlag(cmd)))
			if err != nil {
				return err
			}
			return printCorrection(cmd, written, report, jsonOut)
		},
	}
	cmd.Flags().StringP("out", "o", "", "output WAV (default: recordings dir)")
	cmd.Flags().Float64("threshold", 0, "similarity threshold override in [0,1]")
	cmd.Flags().Bool("daemon", false, "queue the job on the running daemon")
	cmd.Flags().Bool("json", false, "output the report as JSON")
	return cmd
}

func printCorrection(cmd *cobra.Command, written string, report *corrector.Report, jsonOut bool) error {
	out := cmd.OutOrStdout()
	if jsonOut {
		return json.NewEncoder(out).Encode(map[string]any{"output": written, "report": report})
	}
	if report != nil {
		fmt.Fprint(out, report.Text())
	}
	fmt.Fprintf(out, "written: %s\n", written)
	return nil
}

// NewRecordCmd records from the microphone into a WAV file.
func NewRecordCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone (optionally correcting the take)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadWithLogger(*cfgPath)
			if err != nil {
				return err
			}
			seconds, _ := cmd.Flags().GetFloat64("seconds")
			outPath, _ := cmd.Flags().GetString("out")
			doCorrect, _ := cmd.Flags().GetBool("correct")
			if outPath == "" {
				outPath = filepath.Join(cfg.Paths.RecordingsDir, fmt.Sprintf("take-%s.wav", time.Now().Format("20060102-150405")))
			}

			audio, err := recordTake(cmd, cfg, logger, secondsDuration(seconds))
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return err
			}
			if err := wavio.Write(outPath, audio, cfg.Audio.SampleRate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %.2fs: %s\n", float64(len(audio))/float64(cfg.Audio.SampleRate), outPath)
			if !doCorrect {
				return nil
			}
			p, err := pipeline.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()
			report, written, err := p.CorrectFile(cmd.Context(), outPath, "", p.Threshold(nil))
			if err != nil {
				return err
			}
			return printCorrection(cmd, written, report, false)
		},
	}
	cmd.Flags().Float64("seconds", 3, "recording length")
	cmd.Flags().StringP("out", "o", "", "output WAV (default: recordings dir)")
	cmd.Flags().Bool("correct", false, "correct the take after recording")
	return cmd
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func recordTake(cmd *cobra.Command, cfg *config.Config, logger *logrus.Logger, d time.Duration) ([]float32, error) {
	src, err := capture.NewDeviceSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	rec := capture.NewFromConfig(cfg, src, logger)
	fmt.Fprintf(cmd.OutOrStdout(), "recording %.1fs...\n", d.Seconds())
	res, err := rec.Record(cmd.Context(), d)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Dropped > 0 || res.TimedOut {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d chunks dropped, collector timeout=%v\n", res.Dropped, res.TimedOut)
	}
	if len(res.Audio) == 0 {
		return nil, fmt.Errorf("no audio captured")
	}
	return res.Audio, nil
}

// NewSyllablesCmd lists the syllable catalog.
func NewSyllablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syllables",
		Short: "List the syllable catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			type entry struct {
				Index int `json:"index"`
				syllables.Syllable
				Category string `json:"category"`
			}
			all := syllables.All()
			out := make([]entry, len(all))
			for i, s := range all {
				out[i] = entry{Index: i + 1, Syllable: s, Category: syllables.Category(s.Text)}
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			for _, e := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-8s %-6s %s\n", e.Index, e.Text, e.Transliteration, e.Category)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}
