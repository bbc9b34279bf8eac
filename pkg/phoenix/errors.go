package phoenix

import "fmt"

// OutOfRangeError reports a query parameter outside the grid's supported
// envelope on one axis.
type OutOfRangeError struct {
	Axis  string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("phoenix: %s %g outside supported grid range [%g, %g]", e.Axis, e.Value, e.Min, e.Max)
}

// UnsupportedResolutionError reports a requested resolution that is not a
// supported tier (under the strict policy).
type UnsupportedResolutionError struct {
	Requested int
	Supported []int
}

func (e *UnsupportedResolutionError) Error() string {
	return fmt.Sprintf("phoenix: resolution %d is not a supported tier %v", e.Requested, e.Supported)
}

// RetrievalError reports a failure to fetch a grid file from the remote
// archive, after any configured retries.
type RetrievalError struct {
	Key string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("phoenix: retrieving %s: %v", e.Key, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// CacheCorruptionError reports a cache entry that failed integrity
// validation even after one re-fetch.
type CacheCorruptionError struct {
	Key string
	Err error
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("phoenix: cache entry %s is corrupt: %v", e.Key, e.Err)
}

func (e *CacheCorruptionError) Unwrap() error { return e.Err }
