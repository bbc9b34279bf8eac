package phoenix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/astroseed/phoenixgrid/internal/cache"
	"github.com/astroseed/phoenixgrid/pkg/spectrum"
)

// synthFlux is linear in the interpolation coordinates (log10 T, logg,
// [Fe/H]), so an exact multilinear blend must reproduce it at any query
// point inside the grid.
func synthFlux(temperature, logg, metallicity float64, i int) float64 {
	return 1000 + float64(i) + 100*math.Log10(temperature) + 10*logg + 5*metallicity
}

// synthArchive serves generated grid files and counts fetches per key.
type synthArchive struct {
	fetches map[string]int
	err     error
}

func newSynthArchive() *synthArchive {
	return &synthArchive{fetches: map[string]int{}}
}

func (a *synthArchive) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	a.fetches[key]++
	if a.err != nil {
		return nil, a.err
	}

	var resolution int
	var temperature, logg, metallicity float64
	if _, err := fmt.Sscanf(key, "R%5d/T%5f_g%5f_Z%5f.phx", &resolution, &temperature, &logg, &metallicity); err != nil {
		return nil, fmt.Errorf("unexpected key %q: %w", key, err)
	}

	wavelength := spectrum.LogGrid(WavelengthMin, WavelengthMax, resolution)
	flux := make([]float64, len(wavelength))
	for i := range flux {
		flux[i] = synthFlux(temperature, logg, metallicity, i)
	}
	s, err := spectrum.New(wavelength, flux)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = spectrum.Encode(&buf, spectrum.File{
		Temperature: temperature,
		LogG:        logg,
		Metallicity: metallicity,
		Resolution:  resolution,
		Spectrum:    s,
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

func (a *synthArchive) totalFetches() int {
	var n int
	for _, c := range a.fetches {
		n += c
	}
	return n
}

func newTestLibrary(t *testing.T, arch Fetcher, policy ResolutionPolicy) *Library {
	t.Helper()
	lib, err := NewLibrary(arch, Options{CacheDir: t.TempDir(), Policy: policy})
	if err != nil {
		t.Fatalf("NewLibrary() error = %v", err)
	}
	return lib
}

func TestGetPhotons_ExactGridPointIsPassthrough(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")

	q := Query{Temperature: 5800, LogG: 4.5, Metallicity: 0, Resolution: 100}
	s, err := lib.GetPhotons(context.Background(), q)
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}

	if arch.totalFetches() != 1 {
		t.Fatalf("fetches = %d, want 1 (exact grid point needs no neighbors)", arch.totalFetches())
	}
	for i, v := range s.Flux {
		if v != synthFlux(5800, 4.5, 0, i) {
			t.Fatalf("flux[%d] = %g, want unchanged grid value %g", i, v, synthFlux(5800, 4.5, 0, i))
		}
	}
}

func TestGetPhotons_InterpolatesInLogTemperature(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")

	q := Query{Temperature: 5780, LogG: 4.5, Metallicity: 0, Resolution: 100}
	s, err := lib.GetPhotons(context.Background(), q)
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}

	if arch.totalFetches() != 2 {
		t.Fatalf("fetches = %d, want 2 (one axis between grid points)", arch.totalFetches())
	}
	for i, v := range s.Flux {
		want := synthFlux(5780, 4.5, 0, i)
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("flux[%d] = %g, want %g (linear in log10 T)", i, v, want)
		}
	}
}

func TestGetPhotons_BracketsMonotonically(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")
	ctx := context.Background()

	mid, err := lib.GetPhotons(ctx, Query{Temperature: 5780, LogG: 4.5, Metallicity: 0, Resolution: 100})
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}
	lo, err := lib.GetPhotons(ctx, Query{Temperature: 5700, LogG: 4.5, Metallicity: 0, Resolution: 100})
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}
	hi, err := lib.GetPhotons(ctx, Query{Temperature: 5800, LogG: 4.5, Metallicity: 0, Resolution: 100})
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}

	for i := range mid.Flux {
		if mid.Flux[i] < lo.Flux[i] || mid.Flux[i] > hi.Flux[i] {
			t.Fatalf("flux[%d] = %g not bracketed by [%g, %g]", i, mid.Flux[i], lo.Flux[i], hi.Flux[i])
		}
	}
}

func TestGetPhotons_SlopeContinuityInLogTemperature(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")
	ctx := context.Background()

	base := 5750.0
	eps := 1.0
	a, err := lib.GetPhotons(ctx, Query{Temperature: base, LogG: 4.5, Metallicity: 0, Resolution: 100})
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}
	b, err := lib.GetPhotons(ctx, Query{Temperature: base + eps, LogG: 4.5, Metallicity: 0, Resolution: 100})
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}

	// synthetic flux has slope 100 per unit log10(T) at every wavelength
	dlog := math.Log10(base+eps) - math.Log10(base)
	for i := range a.Flux {
		slope := (b.Flux[i] - a.Flux[i]) / dlog
		if math.Abs(slope-100) > 1e-6 {
			t.Fatalf("slope[%d] = %g, want 100", i, slope)
		}
	}
}

func TestGetPhotons_ExplicitWavelengthTakesPrecedence(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")

	target := []float64{0.1, 0.5, 1.0, 2.0, 4.9}
	q := Query{Temperature: 5780, LogG: 4.43, Metallicity: 0, Resolution: 100, Wavelength: target}
	s, err := lib.GetPhotons(context.Background(), q)
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}

	if s.Len() != len(target) {
		t.Fatalf("Len() = %d, want %d", s.Len(), len(target))
	}
	for i, w := range target {
		if s.Wavelength[i] != w {
			t.Fatalf("wavelength[%d] = %g, want exactly %g", i, s.Wavelength[i], w)
		}
	}
}

func TestGetPhotons_OutOfRangeTemperature(t *testing.T) {
	lib := newTestLibrary(t, newSynthArchive(), "")

	_, err := lib.GetPhotons(context.Background(), Query{Temperature: 2000, LogG: 4.5, Metallicity: 0, Resolution: 100})
	var oor *OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("expected OutOfRangeError, got %v", err)
	}
	if oor.Axis != "temperature" || oor.Min != 2300 || oor.Max != 12000 {
		t.Fatalf("error detail = %+v", oor)
	}
}

func TestGetPhotons_ResolutionPolicy(t *testing.T) {
	arch := newSynthArchive()
	strict := newTestLibrary(t, arch, PolicyStrict)

	_, err := strict.GetPhotons(context.Background(), Query{Temperature: 5800, LogG: 4.5, Metallicity: 0, Resolution: 120})
	var ur *UnsupportedResolutionError
	if !errors.As(err, &ur) {
		t.Fatalf("expected UnsupportedResolutionError under strict policy, got %v", err)
	}

	nearest := newTestLibrary(t, arch, PolicyNearest)
	s, err := nearest.GetPhotons(context.Background(), Query{Temperature: 5800, LogG: 4.5, Metallicity: 0, Resolution: 120})
	if err != nil {
		t.Fatalf("GetPhotons() under nearest policy error = %v", err)
	}
	if want := spectrum.LogGrid(WavelengthMin, WavelengthMax, 100); s.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d samples of the R=100 tier", s.Len(), len(want))
	}
}

func TestGetPhotons_ZeroTemperatureUsesDefault(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")
	ctx := context.Background()

	defaulted, err := lib.GetPhotons(ctx, Query{LogG: 4.5, Metallicity: 0})
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}

	explicit, err := lib.GetPhotons(ctx, Query{
		Temperature: SolarDefaults.Temperature,
		LogG:        4.5,
		Metallicity: 0,
		Resolution:  SolarDefaults.Resolution,
	})
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}

	if defaulted.Len() != explicit.Len() {
		t.Fatalf("Len() = %d, want %d", defaulted.Len(), explicit.Len())
	}
	for i := range explicit.Flux {
		if defaulted.Flux[i] != explicit.Flux[i] {
			t.Fatalf("flux[%d] = %g, want %g (same as an explicit default query)", i, defaulted.Flux[i], explicit.Flux[i])
		}
	}
}

func TestGetPhotons_ZeroResolutionUsesDefaultTier(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")

	s, err := lib.GetPhotons(context.Background(), Query{Temperature: 5800, LogG: 4.5, Metallicity: 0})
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}
	if want := spectrum.LogGrid(WavelengthMin, WavelengthMax, SolarDefaults.Resolution); s.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d samples of the default tier", s.Len(), len(want))
	}
}

func TestGetPhotons_CacheHitSkipsNetwork(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")
	ctx := context.Background()
	q := Query{Temperature: 5780, LogG: 4.43, Metallicity: 0.25, Resolution: 100}

	first, err := lib.GetPhotons(ctx, q)
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}
	fetchesAfterFirst := arch.totalFetches()
	if fetchesAfterFirst != 8 {
		t.Fatalf("fetches = %d, want 8 corners", fetchesAfterFirst)
	}

	second, err := lib.GetPhotons(ctx, q)
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}
	if arch.totalFetches() != fetchesAfterFirst {
		t.Fatalf("repeat query re-fetched: %d fetches, want %d", arch.totalFetches(), fetchesAfterFirst)
	}

	for i := range first.Flux {
		if first.Flux[i] != second.Flux[i] || first.Wavelength[i] != second.Wavelength[i] {
			t.Fatalf("repeat query not bit-identical at %d", i)
		}
	}
}

// blockingArchive holds the first download open until released, forcing
// concurrent callers to overlap on the in-flight fetch.
type blockingArchive struct {
	synth   *synthArchive
	mu      sync.Mutex
	fetches int
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingArchive() *blockingArchive {
	return &blockingArchive{
		synth:   newSynthArchive(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (a *blockingArchive) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	a.fetches++
	a.mu.Unlock()
	a.once.Do(func() { close(a.started) })
	<-a.release

	// synthArchive is not safe for concurrent use on its own
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.synth.Fetch(ctx, key)
}

func TestGetPhotons_ConcurrentQueriesShareDownloads(t *testing.T) {
	arch := newBlockingArchive()
	lib := newTestLibrary(t, arch, "")

	// 5780 K sits between grid points, so the query needs 2 corner files
	q := Query{Temperature: 5780, LogG: 4.5, Metallicity: 0, Resolution: 100}

	const workers = 8
	results := make([]spectrum.Spectrum, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = lib.GetPhotons(context.Background(), q)
		}(i)
	}

	// hold the first download open until every worker is underway, then
	// let them all race
	<-arch.started
	close(arch.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: GetPhotons() error = %v", i, err)
		}
	}

	// one download per corner, regardless of caller count: overlapping
	// callers share the in-flight fetch, late ones hit the cache
	if arch.fetches != 2 {
		t.Fatalf("fetches = %d, want 2 (one per corner, not per caller)", arch.fetches)
	}

	for i := 1; i < workers; i++ {
		if results[i].Len() != results[0].Len() {
			t.Fatalf("worker %d: Len() = %d, want %d", i, results[i].Len(), results[0].Len())
		}
		for j := range results[0].Flux {
			if results[i].Flux[j] != results[0].Flux[j] {
				t.Fatalf("worker %d: flux[%d] differs from worker 0", i, j)
			}
		}
	}
}

func TestGetPhotons_CorruptCacheEntryIsRefetched(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")

	key := cache.GridKey{Temperature: 5800, LogG: 4.5, Metallicity: 0, Resolution: 100}
	path := filepath.Join(lib.CacheDir(), filepath.FromSlash(key.Key()))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	q := Query{Temperature: 5800, LogG: 4.5, Metallicity: 0, Resolution: 100}
	s, err := lib.GetPhotons(context.Background(), q)
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}
	if arch.totalFetches() != 1 {
		t.Fatalf("fetches = %d, want 1 re-fetch of the corrupt entry", arch.totalFetches())
	}
	if s.Flux[0] != synthFlux(5800, 4.5, 0, 0) {
		t.Fatalf("flux[0] = %g after re-fetch", s.Flux[0])
	}
}

func TestGetPhotons_FetchFailureIsRetrievalError(t *testing.T) {
	arch := newSynthArchive()
	arch.err = errors.New("archive unreachable")
	lib := newTestLibrary(t, arch, "")

	_, err := lib.GetPhotons(context.Background(), DefaultQuery())
	var re *RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetrievalError, got %v", err)
	}
	if re.Key == "" {
		t.Fatal("RetrievalError should name the key")
	}
}

func TestGetPhotons_SolarScenario(t *testing.T) {
	arch := newSynthArchive()
	lib := newTestLibrary(t, arch, "")

	q := Query{Temperature: 5780, LogG: 4.43, Metallicity: 0.0, Resolution: 1000}
	s, err := lib.GetPhotons(context.Background(), q)
	if err != nil {
		t.Fatalf("GetPhotons() error = %v", err)
	}

	if s.Len() != len(s.Flux) || s.Len() == 0 {
		t.Fatalf("inconsistent arrays: %d wavelengths, %d fluxes", s.Len(), len(s.Flux))
	}
	if s.Wavelength[0] != WavelengthMin || s.Wavelength[s.Len()-1] != WavelengthMax {
		t.Fatalf("coverage [%g, %g], want [%g, %g]", s.Wavelength[0], s.Wavelength[s.Len()-1], WavelengthMin, WavelengthMax)
	}
	for i, v := range s.Flux {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			t.Fatalf("flux[%d] = %g, want finite and non-negative", i, v)
		}
	}
	if s.FluxUnit != spectrum.PhotonSurfaceFlux || s.WavelengthUnit != spectrum.Micron {
		t.Fatalf("units = %q, %q", s.WavelengthUnit, s.FluxUnit)
	}
}
