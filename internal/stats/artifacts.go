package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tworate/internal/model"
	"tworate/internal/regress"
	"tworate/internal/table"
)

const (
	runIndexFile = "run_index.json"
	configFile   = "config.json"
	historyFile  = "history.csv"
)

// HistoryFeatureFile names the wide per-feature table of a run.
func HistoryFeatureFile(feature string) string {
	return "history." + feature + ".csv"
}

func LagSampleFile(lagMonths int) string {
	return fmt.Sprintf("lag_sample.%dm.csv", lagMonths)
}

func RegressionFile(title string) string {
	return "regression." + Slug(title) + ".json"
}

// Slug reduces a title to characters that are safe in file names.
func Slug(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '+', r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

type RunConfig struct {
	RunID        string           `json:"run_id"`
	CreatedAtUTC string           `json:"created_at_utc"`
	StepMonths   int              `json:"step_months"`
	Steps        int              `json:"steps"`
	Model        model.ConfigSpec `json:"model"`
}

type RunArtifacts struct {
	Config  RunConfig     `json:"config"`
	History model.History `json:"history"`
}

// Regression is the persisted output of one bucketed regression over a lag
// sample.
type Regression struct {
	Title     string         `json:"title"`
	RunID     string         `json:"run_id"`
	LagMonths int            `json:"lag_months"`
	XColumn   string         `json:"x_column"`
	YColumn   string         `json:"y_column"`
	Countries []string       `json:"countries,omitempty"`
	Range     regress.Range  `json:"range"`
	Result    regress.Result `json:"result"`
}

type RunIndexEntry struct {
	RunID        string `json:"run_id"`
	CountryCount int    `json:"country_count"`
	YearCount    int    `json:"year_count"`
	Seed         int64  `json:"seed"`
	ShortTarget  string `json:"short_target"`
	Steps        int    `json:"steps"`
	CreatedAtUTC string `json:"created_at_utc"`
}

// WriteRunArtifacts writes config.json, the long history table and one wide
// table per feature into <baseDir>/<run id>.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	history := artifacts.History
	if err := table.WriteFile(filepath.Join(runDir, historyFile), func(w io.Writer) error {
		return table.WriteHistory(w, history)
	}); err != nil {
		return "", err
	}
	for _, feature := range model.Features {
		feature := feature
		if err := table.WriteFile(filepath.Join(runDir, HistoryFeatureFile(feature)), func(w io.Writer) error {
			return table.WriteFeature(w, history, feature)
		}); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func ReadHistory(baseDir, runID string) (model.History, bool, error) {
	h, err := table.ReadHistoryFile(filepath.Join(baseDir, runID, historyFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.History{}, false, nil
		}
		return model.History{}, false, fmt.Errorf("read history of run %s: %w", runID, err)
	}
	return h, true, nil
}

func WriteLagSample(baseDir, runID string, sample model.LagSample) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}
	path := filepath.Join(baseDir, runID, LagSampleFile(sample.LagMonths))
	if err := table.WriteFile(path, func(w io.Writer) error {
		return table.WriteLagSample(w, sample)
	}); err != nil {
		return "", err
	}
	return path, nil
}

func ReadLagSample(baseDir, runID string, lagMonths int) (model.LagSample, bool, error) {
	s, err := table.ReadLagSampleFile(filepath.Join(baseDir, runID, LagSampleFile(lagMonths)))
	if err != nil {
		if os.IsNotExist(err) {
			return model.LagSample{}, false, nil
		}
		return model.LagSample{}, false, fmt.Errorf("read lag sample of run %s: %w", runID, err)
	}
	return s, true, nil
}

func WriteRegression(baseDir string, reg Regression) (string, error) {
	if strings.TrimSpace(reg.RunID) == "" {
		return "", fmt.Errorf("run id is required")
	}
	if Slug(reg.Title) == "" {
		return "", fmt.Errorf("regression title is required")
	}
	runDir := filepath.Join(baseDir, reg.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(runDir, RegressionFile(reg.Title))
	if err := writeJSON(path, reg); err != nil {
		return "", err
	}
	return path, nil
}

func ReadRegression(baseDir, runID, title string) (Regression, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, RegressionFile(title)))
	if err != nil {
		if os.IsNotExist(err) {
			return Regression{}, false, nil
		}
		return Regression{}, false, err
	}

	var reg Regression
	if err := json.Unmarshal(data, &reg); err != nil {
		return Regression{}, false, err
	}
	return reg, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// later appended entries win ties
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory into outDir. config.json and the
// long history are required; derived tables and regressions are copied when
// present.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, historyFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, pattern := range []string{"history.*.csv", "lag_sample.*.csv", "regression.*.json"} {
		matches, err := filepath.Glob(filepath.Join(src, pattern))
		if err != nil {
			return "", err
		}
		for _, path := range matches {
			if err := copyFile(path, filepath.Join(dst, filepath.Base(path))); err != nil {
				return "", err
			}
		}
	}

	return dst, nil
}

// RemoveRunArtifacts deletes the run directory. A missing directory is not an
// error.
func RemoveRunArtifacts(baseDir, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	return os.RemoveAll(filepath.Join(baseDir, runID))
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
