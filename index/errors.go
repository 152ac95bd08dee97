package index

import "errors"

// ErrBadSnapshot indicates a persisted index file that cannot be loaded:
// wrong magic, unsupported version, or a truncated/corrupt body. Loads
// fail closed; no partial state is installed.
var ErrBadSnapshot = errors.New("index: invalid snapshot")
