package appendstore

import "errors"

var (
	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("appendstore: store closed")

	// ErrCapacity indicates an append would grow the backing file past its
	// configured maximum size. The batch that triggered it must be rejected;
	// the store is otherwise unaffected.
	ErrCapacity = errors.New("appendstore: max file size exceeded")

	// ErrOutOfRange indicates a read past the logical end of data.
	ErrOutOfRange = errors.New("appendstore: read out of range")

	// ErrNoManifest indicates a backing file without its manifest side
	// file; the store refuses to guess a tail and requires a rebuild.
	ErrNoManifest = errors.New("appendstore: backing file has no manifest")
)
