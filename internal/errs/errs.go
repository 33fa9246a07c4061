// Package errs contains sentinel errors shared across layers for stable
// error mapping at the HTTP boundary.
package errs

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")
