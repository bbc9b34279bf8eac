package phoenix

// Query describes one spectrum request. Construct it with DefaultQuery
// and override the fields that differ; defaults are modeled explicitly
// rather than substituted at call sites.
// Temperature and Resolution treat zero as "use the default" (0 K is
// never a grid value and 0 is never a tier); LogG and Metallicity are
// taken as given, since 0.0 is a valid grid value on both axes.
type Query struct {
	Temperature float64 // effective temperature, K
	LogG        float64 // surface gravity, dex
	Metallicity float64 // [Fe/H], dex
	Resolution  int     // spectral resolution tier

	// Wavelength, when non-nil, is a strictly ascending array of target
	// wavelengths in micron. It takes precedence over Resolution: the
	// returned spectrum is sampled exactly at these wavelengths.
	Wavelength []float64
}

// Defaults holds the documented default query parameters.
type Defaults struct {
	Temperature float64
	LogG        float64
	Metallicity float64
	Resolution  int
}

// SolarDefaults approximates a Sun-like star at a modest resolution.
var SolarDefaults = Defaults{
	Temperature: 5780,
	LogG:        4.5,
	Metallicity: 0.0,
	Resolution:  100,
}

// DefaultQuery returns a Query filled with SolarDefaults.
func DefaultQuery() Query {
	return Query{
		Temperature: SolarDefaults.Temperature,
		LogG:        SolarDefaults.LogG,
		Metallicity: SolarDefaults.Metallicity,
		Resolution:  SolarDefaults.Resolution,
	}
}
