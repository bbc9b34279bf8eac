package phoenix

import (
	"math"
	"sort"
)

// Wavelength coverage of the PHOENIX grid files, in micron.
const (
	WavelengthMin = 0.05
	WavelengthMax = 5.0
)

// The grid catalog is static per library version: files exist only for
// these parameter values and resolution tiers.
var (
	temperatureAxis = axis{name: "temperature", values: temperatureValues(), coord: math.Log10}
	loggAxis        = axis{name: "logg", values: stepValues(0.0, 6.0, 0.5)}
	metallicityAxis = axis{name: "metallicity", values: []float64{-4.0, -3.0, -2.0, -1.5, -1.0, -0.5, 0.0, 0.5, 1.0}}

	resolutionTiers = []int{10, 30, 100, 300, 1000, 3000, 10000, 30000, 100000}
)

// temperatureValues spans 2300-7000 K in 100 K steps and 7200-12000 K in
// 200 K steps.
func temperatureValues() []float64 {
	values := stepValues(2300, 7000, 100)
	return append(values, stepValues(7200, 12000, 200)...)
}

func stepValues(lo, hi, step float64) []float64 {
	var values []float64
	for v := lo; v <= hi+step/2; v += step {
		values = append(values, v)
	}
	return values
}

// axis is one dimension of the grid. Interpolation fractions are computed
// in the coord space (log10 for temperature, identity otherwise).
type axis struct {
	name   string
	values []float64
	coord  func(float64) float64
}

// bracket locates the grid indices surrounding v. An exact grid match
// returns lo == hi with frac 0, so no neighbor file is needed on that
// axis.
func (a axis) bracket(v float64) (lo, hi int, frac float64, err error) {
	min, max := a.values[0], a.values[len(a.values)-1]
	if v < min || v > max {
		return 0, 0, 0, &OutOfRangeError{Axis: a.name, Value: v, Min: min, Max: max}
	}
	i := sort.SearchFloat64s(a.values, v)
	if i < len(a.values) && a.values[i] == v {
		return i, i, 0, nil
	}
	lo, hi = i-1, i
	c := a.coord
	if c == nil {
		c = func(x float64) float64 { return x }
	}
	frac = (c(v) - c(a.values[lo])) / (c(a.values[hi]) - c(a.values[lo]))
	return lo, hi, frac, nil
}

// corner is one grid point contributing to a multilinear blend, with its
// product weight.
type corner struct {
	temperature float64
	logg        float64
	metallicity float64
	weight      float64
}

// corners computes the minimal set of grid points needed to interpolate
// at (t, g, m): 1 when every axis hits a grid value exactly, up to 8 when
// all three fall strictly between grid points. Weights sum to 1.
func corners(t, g, m float64) ([]corner, error) {
	type pick struct {
		value  float64
		weight float64
	}
	perAxis := func(a axis, v float64) ([]pick, error) {
		lo, hi, frac, err := a.bracket(v)
		if err != nil {
			return nil, err
		}
		if lo == hi {
			return []pick{{a.values[lo], 1}}, nil
		}
		return []pick{{a.values[lo], 1 - frac}, {a.values[hi], frac}}, nil
	}

	tp, err := perAxis(temperatureAxis, t)
	if err != nil {
		return nil, err
	}
	gp, err := perAxis(loggAxis, g)
	if err != nil {
		return nil, err
	}
	mp, err := perAxis(metallicityAxis, m)
	if err != nil {
		return nil, err
	}

	var out []corner
	for _, pt := range tp {
		for _, pg := range gp {
			for _, pm := range mp {
				w := pt.weight * pg.weight * pm.weight
				if w == 0 {
					continue
				}
				out = append(out, corner{pt.value, pg.value, pm.value, w})
			}
		}
	}
	return out, nil
}

// ResolutionTiers returns the supported discrete resolution tiers.
func ResolutionTiers() []int {
	tiers := make([]int, len(resolutionTiers))
	copy(tiers, resolutionTiers)
	return tiers
}

// resolveResolution maps a requested resolution onto a supported tier
// according to the policy: strict rejects non-tier values, nearest rounds
// in log space.
func resolveResolution(r int, policy ResolutionPolicy) (int, error) {
	if r <= 0 {
		return 0, &UnsupportedResolutionError{Requested: r, Supported: ResolutionTiers()}
	}
	for _, tier := range resolutionTiers {
		if tier == r {
			return tier, nil
		}
	}
	if policy != PolicyNearest {
		return 0, &UnsupportedResolutionError{Requested: r, Supported: ResolutionTiers()}
	}
	best := resolutionTiers[0]
	bestDist := math.Inf(1)
	for _, tier := range resolutionTiers {
		d := math.Abs(math.Log10(float64(r)) - math.Log10(float64(tier)))
		if d < bestDist {
			best, bestDist = tier, d
		}
	}
	return best, nil
}
