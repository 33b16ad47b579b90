package noaa

import "errors"

var (
	// ErrMalformedResponse marks an upstream body that parsed to an empty or
	// inconsistent grid. A truncated grid would corrupt all downstream
	// geometry, so this is never recovered within a single run attempt.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrDatasetUnavailable marks an upstream HTML/XML error document,
	// typically "... is not an available dataset" for a run that has not
	// published yet.
	ErrDatasetUnavailable = errors.New("upstream dataset unavailable")

	// ErrRequestFailed marks a network failure, timeout, or non-success
	// status from the upstream service.
	ErrRequestFailed = errors.New("upstream request failed")
)
