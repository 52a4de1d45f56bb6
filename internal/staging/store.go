package staging

import "io"

// stagingStore abstracts where staged bytes live. Each upload is stored
// under a unique id; stores must be safe for concurrent use across ids.
type stagingStore interface {
	// Write copies r into storage under id and returns the byte count.
	// On error the caller removes any partial content.
	Write(id string, r io.Reader) (int64, error)

	// Open returns a reader for the content stored under id.
	Open(id string) (io.ReadCloser, error)

	// Remove deletes the content stored under id. Missing content is not
	// an error.
	Remove(id string) error
}
