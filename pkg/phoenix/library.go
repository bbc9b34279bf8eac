package phoenix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/astroseed/phoenixgrid/internal/cache"
	"github.com/astroseed/phoenixgrid/pkg/spectrum"
)

// Fetcher retrieves one archive object by its relative key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

// ResolutionPolicy decides what happens when a requested resolution is
// not a supported tier.
type ResolutionPolicy string

const (
	// PolicyStrict rejects non-tier resolutions with
	// UnsupportedResolutionError. This is the default.
	PolicyStrict ResolutionPolicy = "strict"
	// PolicyNearest rounds to the nearest tier in log space and logs the
	// substitution at warn level.
	PolicyNearest ResolutionPolicy = "nearest"
)

// Options configures a Library.
type Options struct {
	// CacheDir is the cache root. Empty means cache.DefaultRoot().
	CacheDir string
	// Policy is the resolution policy. Empty means PolicyStrict.
	Policy ResolutionPolicy
}

// Library resolves stellar-parameter queries into interpolated spectra,
// fetching grid files through a Fetcher and keeping them in an on-disk
// cache that persists across process runs.
type Library struct {
	fetcher Fetcher
	store   *cache.Store
	policy  ResolutionPolicy
	group   singleflight.Group
}

// NewLibrary builds a Library. The cache directory is created if absent.
func NewLibrary(fetcher Fetcher, opts Options) (*Library, error) {
	root := opts.CacheDir
	if root == "" {
		var err error
		root, err = cache.DefaultRoot()
		if err != nil {
			return nil, err
		}
	}
	store, err := cache.NewStore(root)
	if err != nil {
		return nil, err
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyStrict
	}
	return &Library{fetcher: fetcher, store: store, policy: policy}, nil
}

// CacheDir returns the cache root directory.
func (l *Library) CacheDir() string { return l.store.Root() }

// CacheSize returns the total size of the cache in bytes.
func (l *Library) CacheSize() (int64, error) { return l.store.Size() }

// ClearCache removes every cached grid file.
func (l *Library) ClearCache() error { return l.store.Clear() }

// GetPhotons resolves q into a photon-flux spectrum: it brackets each
// grid axis independently, fetches only the corner files actually needed
// (through the cache), blends them multilinearly with log10(temperature)
// as the temperature coordinate, and optionally resamples onto
// q.Wavelength.
func (l *Library) GetPhotons(ctx context.Context, q Query) (spectrum.Spectrum, error) {
	if q.Temperature == 0 {
		// 0 K is never a grid value, so it unambiguously means "default"
		q.Temperature = SolarDefaults.Temperature
	}
	if q.Resolution == 0 {
		// likewise, zero is never a tier
		q.Resolution = SolarDefaults.Resolution
	}
	resolution, err := resolveResolution(q.Resolution, l.policy)
	if err != nil {
		return spectrum.Spectrum{}, err
	}
	if resolution != q.Resolution {
		slog.WarnContext(ctx, "rounded resolution to nearest supported tier",
			"requested", q.Resolution, "using", resolution)
	}

	cs, err := corners(q.Temperature, q.LogG, q.Metallicity)
	if err != nil {
		return spectrum.Spectrum{}, err
	}

	slog.DebugContext(ctx, "resolved interpolation corners",
		"temperature", q.Temperature, "logg", q.LogG, "metallicity", q.Metallicity,
		"resolution", resolution, "corners", len(cs))

	var blended spectrum.Spectrum
	for i, c := range cs {
		key := cache.GridKey{
			Temperature: c.temperature,
			LogG:        c.logg,
			Metallicity: c.metallicity,
			Resolution:  resolution,
		}
		f, err := l.corner(ctx, key)
		if err != nil {
			return spectrum.Spectrum{}, err
		}
		if i == 0 {
			blended = spectrum.Spectrum{
				Wavelength:     f.Spectrum.Wavelength,
				Flux:           make([]float64, f.Spectrum.Len()),
				WavelengthUnit: f.Spectrum.WavelengthUnit,
				FluxUnit:       f.Spectrum.FluxUnit,
			}
		} else if f.Spectrum.Len() != blended.Len() {
			return spectrum.Spectrum{}, &CacheCorruptionError{
				Key: key.Key(),
				Err: fmt.Errorf("corner has %d samples, expected %d", f.Spectrum.Len(), blended.Len()),
			}
		}
		for j, v := range f.Spectrum.Flux {
			blended.Flux[j] += c.weight * v
		}
	}

	if q.Wavelength != nil {
		return blended.Resample(q.Wavelength)
	}
	return blended, nil
}

// corner loads one grid file, deduplicating concurrent loads of the same
// key so at most one download per key is in flight in this process.
func (l *Library) corner(ctx context.Context, key cache.GridKey) (spectrum.File, error) {
	v, err, _ := l.group.Do(key.Key(), func() (any, error) {
		return l.loadCorner(ctx, key)
	})
	if err != nil {
		return spectrum.File{}, err
	}
	return v.(spectrum.File), nil
}

func (l *Library) loadCorner(ctx context.Context, key cache.GridKey) (spectrum.File, error) {
	f, err := l.readCached(key)
	if err == nil {
		slog.DebugContext(ctx, "cache hit", "key", key.Key())
		return f, nil
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		// first access for this grid point
	case errors.Is(err, spectrum.ErrCorrupt):
		// stale or damaged entry: drop it and re-fetch once
		slog.WarnContext(ctx, "discarding corrupt cache entry", "key", key.Key(), "error", err)
		if rerr := l.store.Remove(key.Key()); rerr != nil {
			return spectrum.File{}, rerr
		}
	default:
		return spectrum.File{}, err
	}

	slog.InfoContext(ctx, "fetching grid file", "key", key.Key())
	body, ferr := l.fetcher.Fetch(ctx, key.Key())
	if ferr != nil {
		return spectrum.File{}, &RetrievalError{Key: key.Key(), Err: ferr}
	}
	defer body.Close()

	if perr := l.store.Put(key.Key(), body); perr != nil {
		return spectrum.File{}, perr
	}

	f, rerr := l.readCached(key)
	if rerr == nil {
		return f, nil
	}
	if errors.Is(rerr, spectrum.ErrCorrupt) {
		// the freshly fetched file is itself invalid; keep nothing
		_ = l.store.Remove(key.Key())
		return spectrum.File{}, &CacheCorruptionError{Key: key.Key(), Err: rerr}
	}
	return spectrum.File{}, rerr
}

func (l *Library) readCached(key cache.GridKey) (spectrum.File, error) {
	rc, err := l.store.Open(key.Key())
	if err != nil {
		return spectrum.File{}, err
	}
	defer rc.Close()

	f, err := spectrum.Decode(rc)
	if err != nil {
		return spectrum.File{}, err
	}
	if f.Resolution != key.Resolution || f.Temperature != key.Temperature ||
		f.LogG != key.LogG || f.Metallicity != key.Metallicity {
		return spectrum.File{}, fmt.Errorf("%w: file parameters do not match key %s", spectrum.ErrCorrupt, key.Key())
	}
	return f, nil
}
