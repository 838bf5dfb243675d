// Package download defines the data model and collaborator interfaces shared
// by the download executor, retry policy, and session aggregator.
package download

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrorKind names a failure class for logs and retry decisions.
type ErrorKind string

// Failure classes.
const (
	ErrorNone               ErrorKind = ""
	ErrorNetworkTimeout     ErrorKind = "network-timeout"
	ErrorNetworkRefused     ErrorKind = "network-refused"
	ErrorNetworkDNS         ErrorKind = "network-dns"
	ErrorNetworkOther       ErrorKind = "network-other"
	ErrorRetryableStatus    ErrorKind = "retryable-status"
	ErrorNonRetryableStatus ErrorKind = "non-retryable-status"
	ErrorPersistence        ErrorKind = "persistence"
	ErrorCanceled           ErrorKind = "canceled"
)

// IsNetwork reports whether the kind is a transport-level failure.
func (k ErrorKind) IsNetwork() bool {
	switch k {
	case ErrorNetworkTimeout, ErrorNetworkRefused, ErrorNetworkDNS, ErrorNetworkOther:
		return true
	default:
		return false
	}
}

// ClassifyNetworkError maps a transport error to a network ErrorKind.
func ClassifyNetworkError(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorNetworkDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorNetworkRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorNetworkTimeout
	}
	return ErrorNetworkOther
}

// Outcome is the immutable result of one request. A zero StatusCode means no
// response was received.
type Outcome struct {
	Succeeded  bool
	StatusCode int
	Bytes      int
	Elapsed    time.Duration
	ErrorKind  ErrorKind
	Err        error
}

// SuccessOutcome builds a successful Outcome.
func SuccessOutcome(code, bytes int, elapsed time.Duration) Outcome {
	return Outcome{Succeeded: true, StatusCode: code, Bytes: bytes, Elapsed: elapsed}
}

// FailureOutcome builds a failed Outcome.
func FailureOutcome(code int, kind ErrorKind, elapsed time.Duration, err error) Outcome {
	return Outcome{StatusCode: code, ErrorKind: kind, Elapsed: elapsed, Err: err}
}

// ErrorText returns the error message or an empty string.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Attempt records one request for a URL.
type Attempt struct {
	URL       string
	Number    int
	Timestamp time.Time
	Outcome   Outcome
}

// Result is the final outcome for one URL once its attempt loop ends.
type Result struct {
	URL             string        `json:"url"`
	FinalStatusCode int           `json:"final_status_code,omitempty"`
	Succeeded       bool          `json:"succeeded"`
	TotalAttempts   int           `json:"total_attempts"`
	TotalElapsed    time.Duration `json:"total_elapsed"`
	ContentSize     int64         `json:"content_size"`
	ContentType     string        `json:"content_type,omitempty"`
	ContentHash     string        `json:"content_hash,omitempty"`
	SavedPath       string        `json:"saved_path,omitempty"`
	MetadataPath    string        `json:"metadata_path,omitempty"`
	Reason          string        `json:"reason"`
	ErrorKind       ErrorKind     `json:"error_kind,omitempty"`
	Unchanged       bool          `json:"unchanged,omitempty"`
	Canceled        bool          `json:"canceled,omitempty"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// FetchResponse is what a Fetcher returns for a completed HTTP exchange,
// whatever its status code.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Metadata is persisted next to every saved page.
type Metadata struct {
	URL         string      `json:"url"`
	FinalURL    string      `json:"final_url,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	StatusCode  int         `json:"status_code"`
	Headers     http.Header `json:"headers"`
	ContentType string      `json:"content_type"`
	SizeBytes   int64       `json:"size_bytes"`
	ElapsedMs   int64       `json:"elapsed_ms"`
	ContentHash string      `json:"content_hash"`
	ContentURI  string      `json:"content_uri"`
	Links       []Link      `json:"links,omitempty"`
}

// Link is an anchor extracted from a downloaded page.
type Link struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	Internal bool   `json:"internal"`
}

// PersistenceError wraps a storage failure for a downloaded page.
type PersistenceError struct {
	URL string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.URL, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
