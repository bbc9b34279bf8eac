package spectrum

import (
	"fmt"
	"math"
)

// Unit labels the physical unit attached to an array. Values travel with
// the data so downstream consumers never have to guess what they were
// handed.
type Unit string

const (
	// Micron is the wavelength unit used throughout the library.
	Micron Unit = "micron"
	// PhotonSurfaceFlux is a photon emission rate per unit emitting area
	// per unit wavelength.
	PhotonSurfaceFlux Unit = "photon / (s m^2 micron)"
)

// Spectrum is a wavelength/flux pair with explicit units. Wavelengths are
// strictly ascending; flux has one sample per wavelength.
type Spectrum struct {
	Wavelength     []float64
	Flux           []float64
	WavelengthUnit Unit
	FluxUnit       Unit
}

// New builds a Spectrum in the library's standard units after validating
// the arrays.
func New(wavelength, flux []float64) (Spectrum, error) {
	if len(wavelength) == 0 {
		return Spectrum{}, fmt.Errorf("spectrum: empty wavelength array")
	}
	if len(wavelength) != len(flux) {
		return Spectrum{}, fmt.Errorf("spectrum: wavelength and flux lengths differ (%d vs %d)", len(wavelength), len(flux))
	}
	if err := checkAscending(wavelength); err != nil {
		return Spectrum{}, err
	}
	return Spectrum{
		Wavelength:     wavelength,
		Flux:           flux,
		WavelengthUnit: Micron,
		FluxUnit:       PhotonSurfaceFlux,
	}, nil
}

// Len returns the number of samples.
func (s Spectrum) Len() int { return len(s.Wavelength) }

func checkAscending(w []float64) error {
	for i := 1; i < len(w); i++ {
		if !(w[i] > w[i-1]) {
			return fmt.Errorf("spectrum: wavelengths must be strictly ascending (index %d: %g after %g)", i, w[i], w[i-1])
		}
	}
	return nil
}

// LogGrid returns a log-uniform wavelength grid covering [min, max] at
// spectral resolution r, i.e. with constant dln(lambda) = 1/r. The last
// point is clamped to max so the grid always spans the full range.
func LogGrid(min, max float64, r int) []float64 {
	n := int(math.Ceil(float64(r)*math.Log(max/min))) + 1
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = min * math.Exp(float64(i)/float64(r))
	}
	grid[n-1] = max
	return grid
}
