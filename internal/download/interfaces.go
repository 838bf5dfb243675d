package download

import (
	"context"
	"io"
	"time"
)

// Fetcher performs one HTTP GET. It returns an error only when no response
// was received; every status code is reported through FetchResponse.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// BlobReader is implemented by stores that can return previously written objects.
type BlobReader interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// AttemptLog receives one entry per attempt.
type AttemptLog interface {
	Record(attempt Attempt)
}

// ResultSink receives every finalized Result (ledger rows, events).
type ResultSink interface {
	Consume(ctx context.Context, result Result) error
}

// LinkExtractor pulls anchors out of a downloaded HTML page.
type LinkExtractor interface {
	ExtractLinks(body []byte, pageURL string) []Link
}

// Hasher computes content digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
