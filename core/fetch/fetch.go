// Package fetch defines the upstream retrieval contract.
package fetch

import "context"

// Fetcher retrieves the raw bytes of one source document. Ordinary network
// failure is reported as an error; a nil payload with a nil error is a
// valid outcome meaning the upstream currently has nothing to offer.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
