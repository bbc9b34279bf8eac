package exitcode

// Exit codes for the phoenixgrid CLI.
// Orchestrators can use these to decide retry strategy.
const (
	// Success - request completed successfully
	Success = 0

	// ConfigError - missing or invalid configuration
	// Don't retry: fix the config first
	ConfigError = 1

	// RangeError - requested parameters outside the grid or resolution
	// not a supported tier
	// Don't retry: fix the query first
	RangeError = 2

	// NetworkError - transient network or archive failure
	// Retry with backoff
	NetworkError = 3

	// StorageError - failed to write to the local cache
	// Retry with backoff
	StorageError = 4

	// DataError - received invalid/undecodable grid data
	// Don't retry: investigate the data
	DataError = 5
)
