package keepsake

import "errors"

// ErrNotFound is returned when an id does not resolve in its collection.
var ErrNotFound = errors.New("not found")
