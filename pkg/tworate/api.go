// Package tworate is the public entry point: it simulates the two-rate
// model, derives lag samples and bucketed regressions, and keeps every run in
// the configured store and on disk.
package tworate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tworate/internal/evolve"
	"tworate/internal/lag"
	"tworate/internal/logging"
	"tworate/internal/model"
	"tworate/internal/regress"
	"tworate/internal/shock"
	"tworate/internal/stats"
	"tworate/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "tworate.db"
)

// DefaultLagMonths is the lag the command line samples at unless told
// otherwise.
const DefaultLagMonths = 60

// Titles of the regressions produced by Pipeline.
const (
	TitleTwoRate   = "lag_sample.two_rate"
	TitleShortRate = "lag_sample.short_rate"
	TitleTermRate  = "lag_sample.term_rate"
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     zerolog.Logger
}

type Client struct {
	store       storage.Store
	initialized bool

	runsDir    string
	exportsDir string
	log        zerolog.Logger
	now        func() time.Time
}

type SimulateRequest struct {
	RunID  string
	Config model.ConfigSpec
	// Seed and YearCount override the calibration when set.
	Seed      *int64
	YearCount int
	Shocks    shock.Factory
}

type SimulateSummary struct {
	RunID        string
	ArtifactsDir string
	CreatedAtUTC string
	Steps        int
	Countries    []string
	History      model.History
}

type LagSampleRequest struct {
	RunID     string
	Latest    bool
	LagMonths int
	Features  []string
	Countries []string
}

type LagSampleSummary struct {
	RunID  string
	Path   string
	Sample model.LagSample
}

type RegressRequest struct {
	RunID     string
	Latest    bool
	LagMonths int
	XColumn   string
	YColumn   string
	Countries []string
	Range     *regress.Range
	Title     string
}

type RegressSummary struct {
	RunID      string
	Path       string
	Regression stats.Regression
}

type PipelineRequest struct {
	RunID     string
	Config    model.ConfigSpec
	Seed      *int64
	YearCount int
	LagMonths int
	Range     *regress.Range
	Shocks    shock.Factory
}

type PipelineSummary struct {
	Simulation  SimulateSummary
	Sample      LagSampleSummary
	Regressions []RegressSummary
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	CountryCount int
	YearCount    int
	Seed         int64
	ShortTarget  string
	Steps        int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.KindMemory
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		runsDir:    runsDir,
		exportsDir: exportsDir,
		log:        logging.Component(opts.Logger, "client"),
		now:        time.Now,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Init opens the store. Every operation calls it, so callers only need it to
// surface connection errors early.
func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// Simulate runs the model, persists the run and its history and writes the
// run artifacts. Nothing is persisted when the simulation fails.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateSummary, error) {
	spec := req.Config
	if req.Seed != nil {
		spec.Seed = *req.Seed
	}
	if req.YearCount > 0 {
		spec.YearCount = req.YearCount
	}
	cfg, err := model.NewModelConfig(spec)
	if err != nil {
		return SimulateSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return SimulateSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	opts := []evolve.Option{evolve.WithLogger(logging.Component(c.log, "evolve").With().Str("run_id", runID).Logger())}
	if req.Shocks != nil {
		opts = append(opts, evolve.WithShocks(req.Shocks))
	}
	history, err := evolve.NewEngine(cfg, opts...).Simulate(ctx)
	if err != nil {
		return SimulateSummary{}, fmt.Errorf("simulate run %s: %w", runID, err)
	}
	history.VersionedRecord = storage.CurrentVersion()

	createdAt := c.now().UTC().Format(time.RFC3339Nano)
	run := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		CreatedAtUTC:    createdAt,
		Config:          cfg.Spec(),
		Steps:           history.Steps(),
	}
	shortTarget := cfg.ShortTarget()
	if shortTarget == "" {
		shortTarget = model.ShortTargetTermSpread
	}

	runDir, err := c.persistRun(ctx, run, history, stats.RunIndexEntry{
		RunID:        runID,
		CountryCount: cfg.CountryCount(),
		YearCount:    cfg.YearCount(),
		Seed:         cfg.Seed(),
		ShortTarget:  string(shortTarget),
		Steps:        history.Steps(),
		CreatedAtUTC: createdAt,
	})
	if err != nil {
		return SimulateSummary{}, err
	}

	c.log.Info().Str("run_id", runID).Str("dir", runDir).Int("steps", history.Steps()).Msg("run artifacts written")
	return SimulateSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		CreatedAtUTC: createdAt,
		Steps:        history.Steps(),
		Countries:    history.Countries(),
		History:      history,
	}, nil
}

// persistRun writes the artifacts, then the store records, then the index
// entry. A failing step undoes the earlier ones so no partial run remains.
func (c *Client) persistRun(ctx context.Context, run model.RunRecord, history model.History, entry stats.RunIndexEntry) (string, error) {
	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        run.ID,
			CreatedAtUTC: run.CreatedAtUTC,
			StepMonths:   history.StepMonths,
			Steps:        history.Steps(),
			Model:        run.Config,
		},
		History: history,
	})
	if err != nil {
		c.discardRun(ctx, run.ID, false)
		return "", fmt.Errorf("write artifacts %s: %w", run.ID, err)
	}

	if err := c.store.SaveHistory(ctx, run.ID, history); err != nil {
		c.discardRun(ctx, run.ID, true)
		return "", fmt.Errorf("save history %s: %w", run.ID, err)
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		c.discardRun(ctx, run.ID, true)
		return "", fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := stats.AppendRunIndex(c.runsDir, entry); err != nil {
		c.discardRun(ctx, run.ID, true)
		return "", fmt.Errorf("index run %s: %w", run.ID, err)
	}
	return runDir, nil
}

// discardRun removes what persistRun wrote for runID. Cleanup errors are
// logged; the caller reports the original failure.
func (c *Client) discardRun(ctx context.Context, runID string, stored bool) {
	if err := stats.RemoveRunArtifacts(c.runsDir, runID); err != nil {
		c.log.Warn().Err(err).Str("run_id", runID).Msg("remove run artifacts")
	}
	if !stored {
		return
	}
	if err := c.store.DeleteRun(context.WithoutCancel(ctx), runID); err != nil {
		c.log.Warn().Err(err).Str("run_id", runID).Msg("delete stored run")
	}
}

// LagSample samples a stored history and persists the sample.
func (c *Client) LagSample(ctx context.Context, req LagSampleRequest) (LagSampleSummary, error) {
	if err := c.Init(ctx); err != nil {
		return LagSampleSummary{}, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return LagSampleSummary{}, err
	}
	history, err := c.loadHistory(ctx, runID)
	if err != nil {
		return LagSampleSummary{}, err
	}

	features := req.Features
	if len(features) == 0 {
		features = history.Features()
	}
	sample, err := lag.Sample(history, lag.Request{LagMonths: req.LagMonths, Features: features, Countries: req.Countries})
	if err != nil {
		return LagSampleSummary{}, err
	}
	path, err := c.saveLagSample(ctx, runID, sample)
	if err != nil {
		return LagSampleSummary{}, err
	}

	return LagSampleSummary{RunID: runID, Path: filepath.Clean(path), Sample: sample}, nil
}

func (c *Client) saveLagSample(ctx context.Context, runID string, sample model.LagSample) (string, error) {
	sample.VersionedRecord = storage.CurrentVersion()
	if err := c.store.SaveLagSample(ctx, runID, sample); err != nil {
		return "", fmt.Errorf("save lag sample %s: %w", runID, err)
	}
	path, err := stats.WriteLagSample(c.runsDir, runID, sample)
	if err != nil {
		return "", err
	}
	c.log.Info().Str("run_id", runID).Str("lag", sample.LagLabel).Int("rows", len(sample.Rows)).Msg("lag sample written")
	return path, nil
}

// Regress buckets two columns of the run's lag sample. The saved sample is
// used only when it holds every feature and country of the history;
// otherwise a full sample is taken from the history, and saved when none
// existed for that lag.
func (c *Client) Regress(ctx context.Context, req RegressRequest) (RegressSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RegressSummary{}, err
	}
	if req.LagMonths <= 0 {
		return RegressSummary{}, model.NewConfigError("lag_months", "must be > 0, got %d", req.LagMonths)
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return RegressSummary{}, err
	}
	sample, err := c.regressionSample(ctx, runID, req.LagMonths)
	if err != nil {
		return RegressSummary{}, err
	}

	r := regress.DefaultRange
	if req.Range != nil {
		r = *req.Range
	}
	points, err := regress.Points(sample, req.XColumn, req.YColumn, req.Countries)
	if err != nil {
		return RegressSummary{}, err
	}
	result, err := regress.Bucketize(points, r)
	if err != nil {
		return RegressSummary{}, err
	}

	title := req.Title
	if title == "" {
		title = req.XColumn + " vs " + req.YColumn
	}
	reg := stats.Regression{
		Title:     title,
		RunID:     runID,
		LagMonths: req.LagMonths,
		XColumn:   req.XColumn,
		YColumn:   req.YColumn,
		Countries: append([]string(nil), req.Countries...),
		Range:     r,
		Result:    result,
	}
	path, err := stats.WriteRegression(c.runsDir, reg)
	if err != nil {
		return RegressSummary{}, err
	}

	c.log.Info().Str("run_id", runID).Str("title", title).Int("points", len(points)).Int("buckets", len(result.Buckets)).Msg("regression written")
	return RegressSummary{RunID: runID, Path: filepath.Clean(path), Regression: reg}, nil
}

// Pipeline simulates, samples both rates at one lag and writes the three
// standard regressions: short against term rate at t, and each rate against
// its own lagged value.
func (c *Client) Pipeline(ctx context.Context, req PipelineRequest) (PipelineSummary, error) {
	lagMonths := req.LagMonths
	if lagMonths <= 0 {
		return PipelineSummary{}, model.NewConfigError("lag_months", "must be > 0, got %d", lagMonths)
	}

	sim, err := c.Simulate(ctx, SimulateRequest{
		RunID:     req.RunID,
		Config:    req.Config,
		Seed:      req.Seed,
		YearCount: req.YearCount,
		Shocks:    req.Shocks,
	})
	if err != nil {
		return PipelineSummary{}, err
	}
	sample, err := c.LagSample(ctx, LagSampleRequest{
		RunID:     sim.RunID,
		LagMonths: lagMonths,
		Features:  []string{model.FeatureShortRate, model.FeatureTermRate},
	})
	if err != nil {
		return PipelineSummary{}, err
	}

	out := PipelineSummary{Simulation: sim, Sample: sample}
	pairs := []struct{ title, x, y string }{
		{TitleTwoRate, model.CurrentColumn(model.FeatureShortRate), model.CurrentColumn(model.FeatureTermRate)},
		{TitleShortRate, model.CurrentColumn(model.FeatureShortRate), model.LaggedColumn(model.FeatureShortRate, lagMonths)},
		{TitleTermRate, model.CurrentColumn(model.FeatureTermRate), model.LaggedColumn(model.FeatureTermRate, lagMonths)},
	}
	for _, p := range pairs {
		reg, err := c.Regress(ctx, RegressRequest{
			RunID:     sim.RunID,
			LagMonths: lagMonths,
			XColumn:   p.x,
			YColumn:   p.y,
			Range:     req.Range,
			Title:     p.title,
		})
		if err != nil {
			return PipelineSummary{}, err
		}
		out.Regressions = append(out.Regressions, reg)
	}
	return out, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		// the run index is per directory; a shared database may know more
		if entries, err = c.storedRuns(ctx); err != nil {
			return nil, err
		}
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			CountryCount: e.CountryCount,
			YearCount:    e.YearCount,
			Seed:         e.Seed,
			ShortTarget:  e.ShortTarget,
			Steps:        e.Steps,
		})
	}
	return out, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", errors.New("run id is required")
		}
		return runID, nil
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		if entries, err = c.storedRuns(ctx); err != nil {
			return "", err
		}
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) storedRuns(ctx context.Context) ([]stats.RunIndexEntry, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]stats.RunIndexEntry, 0, len(runs))
	for _, r := range runs {
		shortTarget := r.Config.ShortTarget
		if shortTarget == "" {
			shortTarget = model.ShortTargetTermSpread
		}
		out = append(out, stats.RunIndexEntry{
			RunID:        r.ID,
			CountryCount: len(r.Config.Countries),
			YearCount:    r.Config.YearCount,
			Seed:         r.Config.Seed,
			ShortTarget:  string(shortTarget),
			Steps:        r.Steps,
			CreatedAtUTC: r.CreatedAtUTC,
		})
	}
	return out, nil
}

// loadHistory prefers the store and falls back to the run's history table.
func (c *Client) loadHistory(ctx context.Context, runID string) (model.History, error) {
	history, ok, err := c.store.GetHistory(ctx, runID)
	if err != nil {
		return model.History{}, err
	}
	if ok {
		return history, nil
	}

	history, ok, err = stats.ReadHistory(c.runsDir, runID)
	if err != nil {
		return model.History{}, err
	}
	if !ok {
		return model.History{}, fmt.Errorf("history not found for run id: %s", runID)
	}
	c.log.Debug().Str("run_id", runID).Msg("history read from artifacts")
	return history, nil
}

func (c *Client) regressionSample(ctx context.Context, runID string, lagMonths int) (model.LagSample, error) {
	history, err := c.loadHistory(ctx, runID)
	if err != nil {
		return model.LagSample{}, err
	}
	saved, found, err := c.findLagSample(ctx, runID, lagMonths)
	if err != nil {
		return model.LagSample{}, err
	}
	if found && coversHistory(saved, history) {
		return saved, nil
	}

	full, err := lag.Sample(history, lag.Request{LagMonths: lagMonths, Features: history.Features()})
	if err != nil {
		return model.LagSample{}, err
	}
	if found {
		c.log.Debug().Str("run_id", runID).Int("lag_months", lagMonths).Msg("saved lag sample is partial, resampled history")
		return full, nil
	}
	if _, err := c.saveLagSample(ctx, runID, full); err != nil {
		return model.LagSample{}, err
	}
	return full, nil
}

// findLagSample looks in the store first and then in the run's artifacts.
func (c *Client) findLagSample(ctx context.Context, runID string, lagMonths int) (model.LagSample, bool, error) {
	sample, ok, err := c.store.GetLagSample(ctx, runID, lagMonths)
	if err != nil || ok {
		return sample, ok, err
	}
	sample, ok, err = stats.ReadLagSample(c.runsDir, runID, lagMonths)
	if err != nil {
		return model.LagSample{}, false, err
	}
	if ok {
		c.log.Debug().Str("run_id", runID).Int("lag_months", lagMonths).Msg("lag sample read from artifacts")
	}
	return sample, ok, nil
}

// coversHistory reports whether s was taken with every feature and every
// country of h.
func coversHistory(s model.LagSample, h model.History) bool {
	for _, f := range h.Features() {
		if _, ok := s.ColumnIndex(model.CurrentColumn(f)); !ok {
			return false
		}
	}
	rows := h.Steps() - s.LagMonths/h.StepMonths
	if rows < 0 {
		rows = 0
	}
	for _, country := range h.Countries() {
		if s.CountRows(country) != rows {
			return false
		}
	}
	return len(s.Rows) == rows*len(h.Series)
}
