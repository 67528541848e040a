// Package shock produces the correlated standard-normal shock pairs that
// drive the short and term rate of each country.
package shock

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Source yields one (short, term) shock pair per call.
type Source interface {
	Next() (short, term float64)
}

// Factory opens one Source per country.
type Factory interface {
	Stream(country string, correlation float64) Source
}

// Seeded gives every country an independent stream whose seed depends only
// on Seed and the country identifier, so a country's path does not change
// when other countries are added, removed or reordered.
type Seeded struct {
	Seed int64
}

func (s Seeded) Stream(country string, correlation float64) Source {
	return NewCorrelated(StreamSeed(s.Seed, country), correlation)
}

// StreamSeed derives the PRNG seed of a country's stream.
func StreamSeed(seed int64, country string) uint64 {
	return splitmix64(uint64(seed) ^ xxhash.Sum64String(country))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Correlated draws two independent unit normals z1, z2 and returns
// (z1, rho*z1 + sqrt(1-rho^2)*z2).
type Correlated struct {
	normal distuv.Normal
	rho    float64
	comp   float64
}

func NewCorrelated(seed uint64, correlation float64) *Correlated {
	return &Correlated{
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)},
		rho:    correlation,
		comp:   math.Sqrt(math.Max(0, 1-correlation*correlation)),
	}
}

func (c *Correlated) Next() (float64, float64) {
	z1 := c.normal.Rand()
	z2 := c.normal.Rand()
	return z1, c.rho*z1 + c.comp*z2
}

// Zero produces no randomness at all.
type Zero struct{}

func (Zero) Stream(string, float64) Source { return zeroSource{} }

type zeroSource struct{}

func (zeroSource) Next() (float64, float64) { return 0, 0 }

// Scripted replays fixed shock pairs per country and then repeats zeros.
type Scripted map[string][][2]float64

func (s Scripted) Stream(country string, _ float64) Source {
	return &scriptedSource{pairs: s[country]}
}

type scriptedSource struct {
	pairs [][2]float64
	next  int
}

func (s *scriptedSource) Next() (float64, float64) {
	if s.next >= len(s.pairs) {
		return 0, 0
	}
	p := s.pairs[s.next]
	s.next++
	return p[0], p[1]
}
