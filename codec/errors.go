package codec

import "errors"

// ErrFormat indicates a buffer that is not a valid encoded record: wrong
// magic, unsupported version, or declared lengths that disagree with the
// buffer size. It is always fatal to the record being decoded.
var ErrFormat = errors.New("codec: malformed record")
