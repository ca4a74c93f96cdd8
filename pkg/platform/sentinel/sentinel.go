package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain errors:
//   - ErrNotFound: no record matched the query
//   - ErrConflict: a uniqueness constraint was violated (e.g. duplicate email)
//   - ErrUnavailable: a backing service could not be reached or a lock was not acquired
//
// Validation failures are not sentinels; use pkg/domain-errors for those.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
