package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects where grid files are fetched from.
type Backend string

const (
	BackendHTTP Backend = "http"
	BackendS3   Backend = "s3"
)

// Config holds application configuration.
type Config struct {
	ArchiveBackend Backend

	// HTTP archive
	ArchiveBaseURL string
	ArchiveToken   string

	// S3-compatible archive mirror
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	CacheDir         string // empty means the default user cache dir
	ResolutionPolicy string // "strict" or "nearest"
	FetchTimeout     time.Duration
	FetchRetries     int
}

type ErrMissingRequiredEnvVar struct {
	Name string
}

func (e *ErrMissingRequiredEnvVar) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

type ErrInvalidEnvVar struct {
	Name  string
	Value string
}

func (e *ErrInvalidEnvVar) Error() string {
	return fmt.Sprintf("environment variable %q has invalid value %q", e.Name, e.Value)
}

// Load reads configuration from environment variables. Which variables
// are required depends on PHOENIX_ARCHIVE_BACKEND (default "http").
func Load() (*Config, error) {
	config := Config{
		ArchiveBackend:   BackendHTTP,
		ResolutionPolicy: "strict",
		FetchTimeout:     5 * time.Minute,
		FetchRetries:     3,
	}

	if v := os.Getenv("PHOENIX_ARCHIVE_BACKEND"); v != "" {
		switch Backend(v) {
		case BackendHTTP, BackendS3:
			config.ArchiveBackend = Backend(v)
		default:
			return nil, &ErrInvalidEnvVar{Name: "PHOENIX_ARCHIVE_BACKEND", Value: v}
		}
	}

	switch config.ArchiveBackend {
	case BackendHTTP:
		config.ArchiveBaseURL = os.Getenv("PHOENIX_ARCHIVE_URL")
		if config.ArchiveBaseURL == "" {
			return nil, &ErrMissingRequiredEnvVar{Name: "PHOENIX_ARCHIVE_URL"}
		}
		config.ArchiveToken = os.Getenv("PHOENIX_ARCHIVE_TOKEN")
	case BackendS3:
		for _, v := range []struct {
			name string
			dst  *string
		}{
			{"PHOENIX_S3_ENDPOINT", &config.S3Endpoint},
			{"PHOENIX_S3_ACCESS_KEY", &config.S3AccessKey},
			{"PHOENIX_S3_SECRET_KEY", &config.S3SecretKey},
			{"PHOENIX_S3_BUCKET", &config.S3Bucket},
		} {
			*v.dst = os.Getenv(v.name)
			if *v.dst == "" {
				return nil, &ErrMissingRequiredEnvVar{Name: v.name}
			}
		}
		config.S3UseSSL = os.Getenv("PHOENIX_S3_USE_SSL") == "true"
	}

	config.CacheDir = os.Getenv("PHOENIX_CACHE_DIR")

	if v := os.Getenv("PHOENIX_RESOLUTION_POLICY"); v != "" {
		if v != "strict" && v != "nearest" {
			return nil, &ErrInvalidEnvVar{Name: "PHOENIX_RESOLUTION_POLICY", Value: v}
		}
		config.ResolutionPolicy = v
	}

	if v := os.Getenv("PHOENIX_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, &ErrInvalidEnvVar{Name: "PHOENIX_FETCH_TIMEOUT", Value: v}
		}
		config.FetchTimeout = d
	}

	if v := os.Getenv("PHOENIX_FETCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &ErrInvalidEnvVar{Name: "PHOENIX_FETCH_RETRIES", Value: v}
		}
		config.FetchRetries = n
	}

	return &config, nil
}
