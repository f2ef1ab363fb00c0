package core

import "errors"

// ErrNotFound is returned by the read-only query operations (get_block,
// get_tx, retrieve_fork) when the requested key has no recorded entry.
var ErrNotFound = errors.New("core: not found")

// ErrUnknownFork is returned when an operation names a fork this process
// has never recorded a tip for.
var ErrUnknownFork = errors.New("core: unknown fork")
