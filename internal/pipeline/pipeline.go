// Package pipeline wires the model, reference store and corrector together
// for the CLI and the daemon.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mivta/internal/config"
	"mivta/internal/corrector"
	"mivta/internal/embedding"
	"mivta/internal/refstore"
	"mivta/internal/wavio"

	"github.com/sirupsen/logrus"
)

// Pipeline owns an open reference store and the components built over it.
type Pipeline struct {
	Config    *config.Config
	Model     *embedding.Model
	Store     *refstore.Store
	Corrector *corrector.Corrector
	logger    *logrus.Logger
}

// Open opens the on-disk store and loads saved references and parameters.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Pipeline, error) {
	if err := config.MustStatePaths(cfg); err != nil {
		return nil, err
	}
	model := embedding.New(cfg, logger)
	store, err := refstore.OpenConfig(cfg, model, logger)
	if err != nil {
		return nil, fmt.Errorf("%w (is the daemon running? it holds the store open)", err)
	}
	return build(ctx, cfg, model, store, logger)
}

// FromStore builds a pipeline over an already opened store.
func FromStore(ctx context.Context, cfg *config.Config, model *embedding.Model, store *refstore.Store, logger *logrus.Logger) (*Pipeline, error) {
	return build(ctx, cfg, model, store, logger)
}

func build(ctx context.Context, cfg *config.Config, model *embedding.Model, store *refstore.Store, logger *logrus.Logger) (*Pipeline, error) {
	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load references: %w", err)
	}
	return &Pipeline{
		Config:    cfg,
		Model:     model,
		Store:     store,
		Corrector: corrector.New(cfg, model, store, logger),
		logger:    logger,
	}, nil
}

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() *logrus.Logger { return p.logger }

// Close releases the store.
func (p *Pipeline) Close() error { return p.Store.Close() }

// Threshold returns t when it is in [0,1], else the model's threshold.
func (p *Pipeline) Threshold(t *float64) float64 {
	if t != nil && *t >= 0 && *t <= 1 {
		return *t
	}
	return p.Model.Snapshot().Threshold()
}

// Analyze assesses every syllable in the WAV at path.
func (p *Pipeline) Analyze(ctx context.Context, path string) ([]corrector.SegmentAssessment, error) {
	audio, _, err := wavio.Read(path, p.Config.Audio.SampleRate)
	if err != nil {
		return nil, err
	}
	return p.Corrector.AnalyzeAndAssess(ctx, audio)
}

// CorrectFile corrects the WAV at in and writes the result to out (or a
// timestamped file under the recordings dir when out is empty). It returns
// the report and the written path.
func (p *Pipeline) CorrectFile(ctx context.Context, in, out string, threshold float64) (*corrector.Report, string, error) {
	audio, _, err := wavio.Read(in, p.Config.Audio.SampleRate)
	if err != nil {
		return nil, "", err
	}
	fixed, report, err := p.Corrector.CorrectAudio(ctx, audio, threshold)
	if err != nil {
		return nil, "", err
	}
	if out == "" {
		out = OutputPath(p.Config, in, time.Now())
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, "", err
	}
	if err := wavio.Write(out, fixed, p.Config.Audio.SampleRate); err != nil {
		return nil, "", err
	}
	p.logger.Infof("corrected %s -> %s: %s", in, out, report.Summary())
	return report, out, nil
}

// OutputPath names the corrected copy of in under the recordings dir.
func OutputPath(cfg *config.Config, in string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	return filepath.Join(cfg.Paths.RecordingsDir, fmt.Sprintf("%s-corrected-%s.wav", base, now.Format("20060102-150405")))
}
