// Package publisher defines the event emitted for every finalized URL.
package publisher

import (
	"time"

	"github.com/JakeFAU/site-downloader/internal/download"
)

// Event is the payload published per Result.
type Event struct {
	SessionID     string    `json:"session_id"`
	URL           string    `json:"url"`
	StatusCode    int       `json:"status_code"`
	Succeeded     bool      `json:"succeeded"`
	Attempts      int       `json:"attempts"`
	ContentURI    string    `json:"content_uri,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
	Unchanged     bool      `json:"unchanged,omitempty"`
	Reason        string    `json:"reason"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ElapsedMillis int64     `json:"elapsed_ms"`
	CompletedAt   time.Time `json:"completed_at"`
}

// NewEvent converts a Result into its published form.
func NewEvent(sessionID string, result download.Result) Event {
	return Event{
		SessionID:     sessionID,
		URL:           result.URL,
		StatusCode:    result.FinalStatusCode,
		Succeeded:     result.Succeeded,
		Attempts:      result.TotalAttempts,
		ContentURI:    result.SavedPath,
		ContentHash:   result.ContentHash,
		Unchanged:     result.Unchanged,
		Reason:        result.Reason,
		ErrorKind:     string(result.ErrorKind),
		ElapsedMillis: result.TotalElapsed.Milliseconds(),
		CompletedAt:   result.CompletedAt,
	}
}

// Outcome labels an event for attribute filtering.
func (e Event) Outcome() string {
	if e.Succeeded {
		return "succeeded"
	}
	return "failed"
}
