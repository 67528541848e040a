// Package regress summarises a scatter sample by fixed-width x buckets: the
// mean of x and y and the standard deviation of y inside each bucket.
package regress

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tworate/internal/model"
)

// boundaryTolerance absorbs accumulation error when the last boundary should
// land exactly on Max.
const boundaryTolerance = 1e-10

// MaxBuckets bounds the number of whole steps a Range may span.
const MaxBuckets = 100000

type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// DefaultRange spans the rates the model usually produces, in decimal units.
var DefaultRange = Range{Min: -0.05, Max: 0.30, Step: 0.02}

func (r Range) validate() error {
	for _, v := range []float64{r.Min, r.Max, r.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.NewConfigError("range", "bounds must be finite")
		}
	}
	if r.Step <= 0 {
		return model.NewConfigError("range.step", "must be > 0, got %v", r.Step)
	}
	if r.Max <= r.Min {
		return model.NewConfigError("range.max", "must exceed min (%v <= %v)", r.Max, r.Min)
	}
	return nil
}

// Boundaries returns Min, Min+Step, ... up to Max. When the range is not a
// whole number of steps the final, narrower bucket ends at Max.
func Boundaries(r Range) ([]float64, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	count := math.Ceil((r.Max + boundaryTolerance - r.Min) / r.Step)
	// count includes the boundary at Min
	if count > MaxBuckets+1 {
		return nil, model.NewConfigError("range.step", "%v over [%v, %v) gives more than %d buckets", r.Step, r.Min, r.Max, MaxBuckets)
	}
	n := int(count)
	out := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, r.Min+float64(i)*r.Step)
	}
	last := out[len(out)-1]
	switch {
	case math.Abs(last-r.Max) <= boundaryTolerance:
		out[len(out)-1] = r.Max
	case last < r.Max:
		out = append(out, r.Max)
	}
	return out, nil
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bucket is the half-open interval [Low, High) and the points inside it.
type Bucket struct {
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	Points []Point `json:"points"`
	MeanX  float64 `json:"mean_x"`
	MeanY  float64 `json:"mean_y"`
	StdY   float64 `json:"std_y"`
}

// Result keeps the raw scatter next to the non-empty buckets. MeanX, MeanY
// and StdY repeat the bucket statistics as parallel series ordered by x.
type Result struct {
	Points  []Point   `json:"points"`
	Buckets []Bucket  `json:"buckets"`
	MeanX   []float64 `json:"mean_x"`
	MeanY   []float64 `json:"mean_y"`
	StdY    []float64 `json:"std_y"`
}

// Bucketize assigns each point to the bucket with Low <= x < High. Points
// below Min, at or above Max, or with NaN x belong to no bucket. Empty
// buckets are dropped. StdY is the population standard deviation.
func Bucketize(points []Point, r Range) (Result, error) {
	bounds, err := Boundaries(r)
	if err != nil {
		return Result{}, err
	}

	members := make([][]Point, len(bounds)-1)
	for _, p := range points {
		i := bucketIndex(bounds, p.X)
		if i < 0 {
			continue
		}
		members[i] = append(members[i], p)
	}

	res := Result{Points: append([]Point(nil), points...)}
	for i, pts := range members {
		if len(pts) == 0 {
			continue
		}
		xs := make([]float64, len(pts))
		ys := make([]float64, len(pts))
		for j, p := range pts {
			xs[j], ys[j] = p.X, p.Y
		}
		meanY, stdY := stat.PopMeanStdDev(ys, nil)
		b := Bucket{
			Low:    bounds[i],
			High:   bounds[i+1],
			Points: pts,
			MeanX:  stat.Mean(xs, nil),
			MeanY:  meanY,
			StdY:   stdY,
		}
		res.Buckets = append(res.Buckets, b)
		res.MeanX = append(res.MeanX, b.MeanX)
		res.MeanY = append(res.MeanY, b.MeanY)
		res.StdY = append(res.StdY, b.StdY)
	}
	return res, nil
}

// bucketIndex returns i with bounds[i] <= x < bounds[i+1], or -1.
func bucketIndex(bounds []float64, x float64) int {
	if math.IsNaN(x) || x < bounds[0] || x >= bounds[len(bounds)-1] {
		return -1
	}
	lo, hi := 0, len(bounds)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if x < bounds[mid] {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}

// Points extracts the (x, y) scatter from two columns of a lag sample,
// optionally restricted to some countries.
func Points(s model.LagSample, xColumn, yColumn string, countries []string) ([]Point, error) {
	if xColumn == "" || yColumn == "" {
		return nil, model.NewConfigError("columns", "scatter requires exactly two columns")
	}
	if xColumn == yColumn {
		return nil, model.NewConfigError("columns", "scatter columns must differ, got %q twice", xColumn)
	}
	xi, ok := s.ColumnIndex(xColumn)
	if !ok {
		return nil, model.NewConfigError("columns", "unknown column %q", xColumn)
	}
	yi, ok := s.ColumnIndex(yColumn)
	if !ok {
		return nil, model.NewConfigError("columns", "unknown column %q", yColumn)
	}

	var keep map[string]struct{}
	if len(countries) > 0 {
		present := make(map[string]struct{})
		for _, c := range s.Countries() {
			present[c] = struct{}{}
		}
		keep = make(map[string]struct{}, len(countries))
		for _, c := range countries {
			if _, ok := present[c]; !ok {
				return nil, model.NewConfigError("countries", "country %q is not present in sample", c)
			}
			keep[c] = struct{}{}
		}
	}

	out := make([]Point, 0, len(s.Rows))
	for _, row := range s.Rows {
		if keep != nil {
			if _, ok := keep[row.Country]; !ok {
				continue
			}
		}
		out = append(out, Point{X: row.Values[xi], Y: row.Values[yi]})
	}
	return out, nil
}
