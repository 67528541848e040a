package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tworate/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type lagKey struct {
	runID string
	lag   int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	histories   map[string]model.History
	samples     map[lagKey]model.LagSample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.histories = make(map[string]model.History)
	s.samples = make(map[lagKey]model.LagSample)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.Config = cloneSpec(run.Config)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.Config = cloneSpec(run.Config)
	return run, true, nil
}

// ListRuns returns every run, newest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.Config = cloneSpec(run.Config)
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUTC == out[j].CreatedAtUTC {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAtUTC > out[j].CreatedAtUTC
	})
	return out, nil
}

func (s *MemoryStore) SaveHistory(_ context.Context, runID string, history model.History) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.histories[runID] = cloneHistory(history)
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, runID string) (model.History, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.histories[runID]
	if !ok {
		return model.History{}, false, nil
	}
	return cloneHistory(history), true, nil
}

func (s *MemoryStore) SaveLagSample(_ context.Context, runID string, sample model.LagSample) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.samples[lagKey{runID: runID, lag: sample.LagMonths}] = cloneLagSample(sample)
	return nil
}

func (s *MemoryStore) GetLagSample(_ context.Context, runID string, lagMonths int) (model.LagSample, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.samples[lagKey{runID: runID, lag: lagMonths}]
	if !ok {
		return model.LagSample{}, false, nil
	}
	return cloneLagSample(sample), true, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	delete(s.runs, runID)
	delete(s.histories, runID)
	for key := range s.samples {
		if key.runID == runID {
			delete(s.samples, key)
		}
	}
	return nil
}

func cloneSpec(spec model.ConfigSpec) model.ConfigSpec {
	spec.Countries = append([]model.CountryParams(nil), spec.Countries...)
	return spec
}

func cloneHistory(h model.History) model.History {
	series := make([]model.CountrySeries, len(h.Series))
	for i, s := range h.Series {
		series[i] = model.CountrySeries{
			Country: s.Country,
			States:  append([]model.RateState(nil), s.States...),
		}
	}
	h.Series = series
	return h
}

func cloneLagSample(s model.LagSample) model.LagSample {
	rows := make([]model.LagRow, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = model.LagRow{
			Country: r.Country,
			Time:    r.Time,
			Values:  append([]float64(nil), r.Values...),
		}
	}
	s.Features = append([]string(nil), s.Features...)
	s.Columns = append([]string(nil), s.Columns...)
	s.Rows = rows
	return s
}
