package domain

import "errors"

// ErrNotFound is returned by repositories when no row matches; callers use
// errors.Is so adapters can wrap it.
var ErrNotFound = errors.New("not found")
