package cache

import "fmt"

// GridKey identifies one PHOENIX grid file by grid-point parameters and
// resolution tier. The layout mirrors the remote archive's naming scheme
// so cache paths and archive paths stay interchangeable.
type GridKey struct {
	Temperature float64 // K, a grid value
	LogG        float64 // dex
	Metallicity float64 // dex
	Resolution  int
}

// Key returns the relative path for the grid file, e.g.
// "R00100/T05800_g+4.50_Z+0.00.phx".
func (k GridKey) Key() string {
	return fmt.Sprintf("R%05d/T%05.0f_g%+.2f_Z%+.2f.phx",
		k.Resolution, k.Temperature, k.LogG, k.Metallicity)
}
