package engine

import "errors"

// ErrIntegrity indicates a checksum mismatch between a written frame and
// what the store read back. The affected batch is never indexed.
var ErrIntegrity = errors.New("engine: frame checksum mismatch")
