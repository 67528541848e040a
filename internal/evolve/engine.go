// Package evolve advances the two-rate model month by month and records the
// full history of every country.
package evolve

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"tworate/internal/model"
	"tworate/internal/shock"
)

const (
	StepMonths = 1
	dt         = 1.0 / 12.0
)

var sqrtDT = math.Sqrt(dt)

type Option func(*Engine)

// WithShocks replaces the default seeded shock streams.
func WithShocks(f shock.Factory) Option {
	return func(e *Engine) {
		e.shocks = f
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// Engine is the TwoRateModel. Every Simulate call opens fresh shock streams,
// so repeated calls on one Engine return identical histories.
type Engine struct {
	cfg    model.ModelConfig
	shocks shock.Factory
	log    zerolog.Logger
}

func NewEngine(cfg model.ModelConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		shocks: shock.Seeded{Seed: cfg.Seed()},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() model.ModelConfig {
	return e.cfg
}

// Simulate evolves every country over YearCount*12 monthly steps and returns
// YearCount*12+1 states per country, t=0 included.
func (e *Engine) Simulate(ctx context.Context) (model.History, error) {
	if e.cfg.IsZero() {
		return model.History{}, model.NewConfigError("config", "model config is not initialised")
	}

	months := e.cfg.MonthCount()
	n := e.cfg.CountryCount()
	params := e.cfg.Countries()

	series := make([]model.CountrySeries, n)
	streams := make([]shock.Source, n)
	current := make([]model.RateState, n)
	for c, p := range params {
		streams[c] = e.shocks.Stream(p.ID, p.Correlation)
		current[c] = model.RateState{Time: 0, ShortRate: p.ShortRate0, TermRate: p.TermRate0}
		states := make([]model.RateState, 0, months+1)
		series[c] = model.CountrySeries{Country: p.ID, States: append(states, current[c])}
	}

	e.log.Info().
		Int("countries", n).
		Int("years", e.cfg.YearCount()).
		Int64("seed", e.cfg.Seed()).
		Str("short_target", string(e.cfg.ShortTarget())).
		Msg("simulation started")

	for step := 1; step <= months; step++ {
		if step%12 == 0 {
			if err := ctx.Err(); err != nil {
				return model.History{}, err
			}
		}
		for c, p := range params {
			zs, zt := streams[c].Next()
			next, err := e.advance(p, current[c], zs, zt)
			if err != nil {
				err.Step = step
				return model.History{}, err
			}
			next.Time = step * StepMonths
			current[c] = next
			series[c].States = append(series[c].States, next)
		}
		if step%12 == 0 {
			e.log.Debug().Int("year", step/12).Msg("simulated year")
		}
	}

	e.log.Info().Int("steps", months+1).Msg("simulation finished")
	return model.History{StepMonths: StepMonths, Series: series}, nil
}

// advance applies one Euler step followed by the soft floor/cap correction.
func (e *Engine) advance(p model.CountryParams, s model.RateState, zs, zt float64) (model.RateState, *model.NumericalError) {
	target := s.TermRate - p.TermPremium
	if e.cfg.ShortTarget() == model.ShortTargetFixed {
		target = p.ShortTarget
	}

	short := s.ShortRate + p.ShortRev*(target-s.ShortRate)*dt + p.ShortVol*zs*sqrtDT
	term := s.TermRate + p.TermRev*(p.TermTarget-s.TermRate)*dt + p.TermVol*zt*sqrtDT

	switch {
	case short > p.SoftCap:
		short += p.CapRev * (p.SoftCap - short) * dt
	case short < p.SoftFloor:
		short += p.FloorRev * (p.SoftFloor - short) * dt
	}

	if !finite(short) {
		return model.RateState{}, &model.NumericalError{Country: p.ID, Feature: model.FeatureShortRate, Value: short}
	}
	if !finite(term) {
		return model.RateState{}, &model.NumericalError{Country: p.ID, Feature: model.FeatureTermRate, Value: term}
	}
	return model.RateState{ShortRate: short, TermRate: term}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
