package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/astroseed/phoenixgrid/internal/archive"
	"github.com/astroseed/phoenixgrid/internal/config"
	"github.com/astroseed/phoenixgrid/internal/exitcode"
	"github.com/astroseed/phoenixgrid/pkg/phoenix"
	"github.com/astroseed/phoenixgrid/pkg/spectrum"
)

func main() {
	// Configure the global logger
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))

	// Parse CLI flags
	temperature := flag.Float64("temperature", phoenix.SolarDefaults.Temperature, "Effective temperature in K")
	logg := flag.Float64("logg", phoenix.SolarDefaults.LogG, "Surface gravity in dex")
	metallicity := flag.Float64("metallicity", phoenix.SolarDefaults.Metallicity, "[Fe/H] in dex")
	resolution := flag.Int("resolution", phoenix.SolarDefaults.Resolution, "Spectral resolution tier")
	output := flag.String("output", "-", "CSV output path, or - for stdout")
	cacheSize := flag.Bool("cache-size", false, "Print total cache size in bytes and exit")
	clearCache := flag.Bool("clear-cache", false, "Remove every cached grid file and exit")
	flag.Parse()

	// Ensure environment variables are loaded
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load env vars", "error", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(exitcode.ConfigError)
	}

	// Create a cancellable context (for graceful shutdown)
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize archive client", "error", err)
		os.Exit(exitcode.ConfigError)
	}

	lib, err := phoenix.NewLibrary(fetcher, phoenix.Options{
		CacheDir: cfg.CacheDir,
		Policy:   phoenix.ResolutionPolicy(cfg.ResolutionPolicy),
	})
	if err != nil {
		slog.Error("failed to initialize library", "error", err)
		os.Exit(exitcode.StorageError)
	}

	switch {
	case *cacheSize:
		size, err := lib.CacheSize()
		if err != nil {
			slog.Error("failed to measure cache", "error", err)
			os.Exit(exitcode.StorageError)
		}
		fmt.Printf("%d\n", size)

	case *clearCache:
		if err := lib.ClearCache(); err != nil {
			slog.Error("failed to clear cache", "error", err)
			os.Exit(exitcode.StorageError)
		}
		slog.Info("cache cleared", "dir", lib.CacheDir())

	default:
		out := os.Stdout
		if *output != "-" {
			f, err := os.Create(*output)
			if err != nil {
				slog.Error("failed to create output file", "path", *output, "error", err)
				os.Exit(exitcode.StorageError)
			}
			defer f.Close()
			out = f
		}

		q := phoenix.Query{
			Temperature: *temperature,
			LogG:        *logg,
			Metallicity: *metallicity,
			Resolution:  *resolution,
		}
		if err := run(ctx, lib, q, out); err != nil {
			slog.Error("application error", "error", err)
			os.Exit(exitCodeFor(err))
		}
	}

	slog.Info("done")
}

func newFetcher(ctx context.Context, cfg *config.Config) (phoenix.Fetcher, error) {
	switch cfg.ArchiveBackend {
	case config.BackendS3:
		return archive.NewS3Client(ctx, archive.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		client := archive.NewClient(cfg.ArchiveBaseURL, cfg.ArchiveToken).
			WithTimeout(cfg.FetchTimeout).
			WithRetries(cfg.FetchRetries)
		return client, nil
	}
}

// run fetches one spectrum and writes it as CSV.
func run(ctx context.Context, lib *phoenix.Library, q phoenix.Query, w io.Writer) error {
	s, err := lib.GetPhotons(ctx, q)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "# wavelength [%s], flux [%s]\n", s.WavelengthUnit, s.FluxUnit); err != nil {
		return err
	}
	for i := range s.Wavelength {
		if _, err := fmt.Fprintf(w, "%g,%g\n", s.Wavelength[i], s.Flux[i]); err != nil {
			return err
		}
	}
	return nil
}

// exitCodeFor maps the library error taxonomy onto exit codes.
func exitCodeFor(err error) int {
	var (
		outOfRange    *phoenix.OutOfRangeError
		badResolution *phoenix.UnsupportedResolutionError
		retrieval     *phoenix.RetrievalError
		corruption    *phoenix.CacheCorruptionError
	)
	switch {
	case errors.As(err, &outOfRange), errors.As(err, &badResolution):
		return exitcode.RangeError
	case errors.As(err, &retrieval):
		return exitcode.NetworkError
	case errors.As(err, &corruption), errors.Is(err, spectrum.ErrCorrupt):
		return exitcode.DataError
	default:
		return exitcode.StorageError
	}
}
