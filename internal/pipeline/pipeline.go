// Package pipeline wires loading, fitting, classification, persistence and
// charting into one batch run.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/vjranagit/idealfit/internal/config"
	"github.com/vjranagit/idealfit/pkg/dataset"
	"github.com/vjranagit/idealfit/pkg/fit"
	"github.com/vjranagit/idealfit/pkg/plot"
	"github.com/vjranagit/idealfit/pkg/storage"
	"github.com/vjranagit/idealfit/pkg/types"
)

// Stored table names
const (
	TrainingTable = "train"
	IdealTable    = "ideal"
	ResultsTable  = "test_data"
)

// Model is a fitted selection together with its classifier.
// Ideal is nil when the model was restored from storage.
type Model struct {
	Training   *types.Table
	Ideal      *types.Table
	Selection  *fit.Selection
	Classifier *fit.Classifier
}

// Report summarises one run
type Report struct {
	Match      types.CandidateMatch
	Results    []types.PointResult
	Matched    int
	Unmatched  int
	Failed     int
	ResultsCSV string
	Charts     []string
	Duration   time.Duration
}

// Pipeline runs the batch flow against a store
type Pipeline struct {
	cfg     *config.Config
	store   storage.Storage
	journal *storage.Journal
	logger  *log.Logger
}

// New creates a pipeline. journal may be nil.
func New(cfg *config.Config, store storage.Storage, journal *storage.Journal) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		journal: journal,
		logger:  log.New(os.Stderr, "[pipeline] ", log.LstdFlags),
	}
}

// Fit loads the training and ideal tables, selects candidates and builds the
// classifier. Both source tables are persisted along with the selection.
func (p *Pipeline) Fit(ctx context.Context) (*Model, error) {
	model, err := p.fit()
	if err != nil {
		return nil, err
	}
	if err := p.persist(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

// Restore rebuilds the model from the training and selected tables of a
// previous run without reading any CSV input.
func (p *Pipeline) Restore(ctx context.Context) (*Model, error) {
	training, err := p.store.LoadTable(ctx, TrainingTable)
	if err != nil {
		return nil, fmt.Errorf("failed to load training table: %w", err)
	}
	reduced, err := p.store.LoadTable(ctx, fit.SelectedTableName)
	if err != nil {
		return nil, fmt.Errorf("failed to load selected table: %w", err)
	}

	sel, err := fit.FromReduced(training, reduced)
	if err != nil {
		return nil, fmt.Errorf("stored selection is unusable: %w", err)
	}
	clf, err := fit.NewClassifier(training, sel.Reduced, p.cfg.ToFitOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	p.logger.Printf("restored %d pairs from storage", len(sel.Match.Pairs))
	return &Model{Training: training, Selection: sel, Classifier: clf}, nil
}

func (p *Pipeline) fit() (*Model, error) {
	training, err := dataset.ReadCSV(p.cfg.Input.TrainingPath, TrainingTable)
	if err != nil {
		return nil, err
	}
	ideal, err := dataset.ReadCSV(p.cfg.Input.IdealPath, IdealTable)
	if err != nil {
		return nil, err
	}
	p.logger.Printf("loaded %d training and %d ideal columns",
		len(training.ValueColumns()), len(ideal.ValueColumns()))

	sel, err := fit.Select(training, ideal)
	if err != nil {
		return nil, fmt.Errorf("candidate selection failed: %w", err)
	}
	for _, pair := range sel.Match.Pairs {
		p.logger.Printf("  %s -> %s (sse %.4f)", pair.Training, pair.Candidate, pair.SSE)
	}

	clf, err := fit.NewClassifier(training, sel.Reduced, p.cfg.ToFitOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	return &Model{Training: training, Ideal: ideal, Selection: sel, Classifier: clf}, nil
}

// persist saves training, ideal and selected tables in that order
func (p *Pipeline) persist(ctx context.Context, model *Model) error {
	tables := []struct {
		kind  storage.Kind
		table *types.Table
	}{
		{storage.KindTraining, model.Training},
		{storage.KindIdeal, model.Ideal},
		{storage.KindSelected, model.Selection.Reduced},
	}
	for _, t := range tables {
		if err := p.store.SaveTable(ctx, t.kind, t.table); err != nil {
			return fmt.Errorf("failed to store %s table: %w", t.kind, err)
		}
	}
	return nil
}

// Run fits, classifies every test point, stores the results, writes the
// annotated CSV, renders charts and appends a journal entry. Nothing is
// stored unless all three inputs load.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	model, err := p.fit()
	if err != nil {
		return nil, err
	}

	points, err := dataset.ReadPoints(p.cfg.Input.TestPath)
	if err != nil {
		return nil, err
	}

	if err := p.persist(ctx, model); err != nil {
		return nil, err
	}

	report := &Report{
		Match:   model.Selection.Match,
		Results: model.Classifier.ClassifyAll(points),
	}
	for _, r := range report.Results {
		switch {
		case r.Failed():
			report.Failed++
			p.logger.Printf("point (%g, %g): %s", r.Point.X, r.Point.Y, r.Err)
		case r.Matched:
			report.Matched++
		default:
			report.Unmatched++
		}
	}
	p.logger.Printf("classified %d points: %d matched, %d unmatched, %d failed",
		len(points), report.Matched, report.Unmatched, report.Failed)

	if err := p.store.SaveResults(ctx, ResultsTable, report.Results); err != nil {
		return nil, fmt.Errorf("failed to store results: %w", err)
	}

	if path := p.cfg.Output.ResultsCSV; path != "" {
		if err := writeResultsCSV(path, report.Results); err != nil {
			return nil, err
		}
		report.ResultsCSV = path
	}

	if p.cfg.Plot.Enabled {
		report.Charts = p.render(model, report.Results)
	}

	report.Duration = time.Since(start)

	if p.journal != nil {
		entry := &storage.JournalEntry{
			Timestamp:  start,
			Training:   p.cfg.Input.TrainingPath,
			Ideal:      p.cfg.Input.IdealPath,
			Test:       p.cfg.Input.TestPath,
			Pairs:      report.Match.Pairs,
			Points:     len(points),
			Matched:    report.Matched,
			Unmatched:  report.Unmatched,
			Failed:     report.Failed,
			DurationMS: report.Duration.Milliseconds(),
		}
		if err := p.journal.Append(entry); err != nil {
			return nil, fmt.Errorf("failed to journal run: %w", err)
		}
	}

	return report, nil
}

// render draws the run charts; failures are logged and the run goes on
func (p *Pipeline) render(model *Model, results []types.PointResult) []string {
	plotter := plot.NewPlotter(p.cfg.Plot.OutputDir, p.cfg.Plot.Width, p.cfg.Plot.Height)

	charts, err := plotter.Render(model.Training, model.Selection, results)
	if err != nil {
		p.logger.Printf("chart rendering failed: %v", err)
	}

	if p.cfg.Plot.Overview && model.Ideal != nil {
		path, err := plotter.Overview(model.Ideal, p.cfg.Plot.OverviewColumns)
		if err != nil {
			p.logger.Printf("overview chart failed: %v", err)
		} else {
			charts = append(charts, path)
		}
	}

	return charts
}

func writeResultsCSV(path string, results []types.PointResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := dataset.WriteResults(f, results); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
