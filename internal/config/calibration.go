package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/rand"
	"gopkg.in/yaml.v3"

	"tworate/internal/model"
)

// InitialRates draws random starting rates for every country:
// short0 ~ U(ShortMin, ShortMax) and term0 = short0 + TermPremium + U(-TermNoise, TermNoise).
type InitialRates struct {
	Seed      uint64  `yaml:"seed"`
	ShortMin  float64 `yaml:"short_min"`
	ShortMax  float64 `yaml:"short_max"`
	TermNoise float64 `yaml:"term_noise"`
}

// calibrationFile is the on-disk layout. Countries are kept as raw nodes so
// each entry can be decoded on top of a copy of Defaults.
type calibrationFile struct {
	YearCount    int                   `yaml:"year_count"`
	Seed         *int64                `yaml:"seed"`
	ShortTarget  model.ShortTargetMode `yaml:"short_target"`
	CountryCount int                   `yaml:"country_count"`
	Defaults     model.CountryParams   `yaml:"defaults"`
	Countries    []yaml.Node           `yaml:"countries"`
	Parallel     *model.ParallelParams `yaml:"parallel"`
	InitialRates *InitialRates         `yaml:"initial_rates"`
}

func LoadCalibration(path string) (model.ConfigSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ConfigSpec{}, err
	}
	spec, err := ParseCalibration(data)
	if err != nil {
		return model.ConfigSpec{}, fmt.Errorf("calibration %s: %w", path, err)
	}
	return spec, nil
}

// ParseCalibration decodes a calibration document and validates the result.
func ParseCalibration(data []byte) (model.ConfigSpec, error) {
	var file calibrationFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return model.ConfigSpec{}, model.NewConfigError("calibration", "document is empty")
		}
		return model.ConfigSpec{}, fmt.Errorf("decode calibration: %w", err)
	}

	var (
		spec model.ConfigSpec
		err  error
	)
	if file.Parallel != nil {
		spec, err = file.parallelSpec()
	} else {
		spec, err = file.countrySpec()
	}
	if err != nil {
		return model.ConfigSpec{}, err
	}

	if file.InitialRates != nil {
		if err := file.InitialRates.Apply(spec.Countries); err != nil {
			return model.ConfigSpec{}, err
		}
	}
	if err := spec.Validate(); err != nil {
		return model.ConfigSpec{}, err
	}
	return spec, nil
}

func (f calibrationFile) parallelSpec() (model.ConfigSpec, error) {
	if f.CountryCount > 0 || len(f.Countries) > 0 {
		return model.ConfigSpec{}, model.NewConfigError("parallel", "cannot be combined with countries or country_count")
	}
	spec, err := f.Parallel.Spec()
	if err != nil {
		return model.ConfigSpec{}, err
	}
	if f.YearCount > 0 {
		spec.YearCount = f.YearCount
	}
	if f.Seed != nil {
		spec.Seed = *f.Seed
	}
	if f.ShortTarget != "" {
		spec.ShortTarget = f.ShortTarget
	}
	return spec, nil
}

func (f calibrationFile) countrySpec() (model.ConfigSpec, error) {
	spec := model.ConfigSpec{YearCount: f.YearCount, ShortTarget: f.ShortTarget}
	if f.Seed != nil {
		spec.Seed = *f.Seed
	}

	switch {
	case len(f.Countries) > 0:
		if f.CountryCount > 0 && f.CountryCount != len(f.Countries) {
			return model.ConfigSpec{}, model.NewConfigError("country_count", "is %d but %d countries are listed", f.CountryCount, len(f.Countries))
		}
		for i := range f.Countries {
			p := f.Defaults
			p.ID = ""
			if err := decodeStrict(&f.Countries[i], &p); err != nil {
				return model.ConfigSpec{}, fmt.Errorf("decode country %d: %w", i, err)
			}
			if p.ID == "" {
				p.ID = model.CountryID(i)
			}
			spec.Countries = append(spec.Countries, p)
		}
	case f.CountryCount > 0:
		for i := 0; i < f.CountryCount; i++ {
			p := f.Defaults
			p.ID = model.CountryID(i)
			spec.Countries = append(spec.Countries, p)
		}
	default:
		return model.ConfigSpec{}, model.NewConfigError("countries", "set countries, country_count or parallel")
	}
	return spec, nil
}

// decodeStrict decodes node onto out, rejecting keys out does not declare.
// yaml.Node.Decode ignores unknown keys, so the node goes through a fresh
// decoder with KnownFields set.
func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Apply overwrites ShortRate0 and TermRate0 of every country. All short rates
// are drawn before the term noise, in country order.
func (r InitialRates) Apply(countries []model.CountryParams) error {
	if r.ShortMax < r.ShortMin {
		return model.NewConfigError("initial_rates.short_max", "must be >= short_min (%v < %v)", r.ShortMax, r.ShortMin)
	}
	if r.TermNoise < 0 {
		return model.NewConfigError("initial_rates.term_noise", "must be >= 0, got %v", r.TermNoise)
	}

	rng := rand.New(rand.NewSource(r.Seed))
	for i := range countries {
		countries[i].ShortRate0 = r.ShortMin + (r.ShortMax-r.ShortMin)*rng.Float64()
	}
	for i := range countries {
		noise := r.TermNoise * (2*rng.Float64() - 1)
		countries[i].TermRate0 = countries[i].ShortRate0 + countries[i].TermPremium + noise
	}
	return nil
}
