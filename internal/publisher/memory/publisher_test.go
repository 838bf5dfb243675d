package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-downloader/internal/download"
)

func TestPublisherStoresEvents(t *testing.T) {
	t.Parallel()

	pub := New("session-1")
	require.NoError(t, pub.Consume(context.Background(), download.Result{
		URL: "https://example.com/a", FinalStatusCode: 200, Succeeded: true, TotalAttempts: 1,
		TotalElapsed: 250 * time.Millisecond,
	}))
	require.NoError(t, pub.Consume(context.Background(), download.Result{
		URL: "https://example.com/b", FinalStatusCode: 404, TotalAttempts: 1, Reason: "non-retryable-status",
	}))

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "session-1", events[0].SessionID)
	assert.Equal(t, int64(250), events[0].ElapsedMillis)
	assert.Equal(t, "succeeded", events[0].Outcome())
	assert.Equal(t, "failed", events[1].Outcome())

	events[0].URL = "modified"
	assert.Equal(t, "https://example.com/a", pub.Events()[0].URL)
}
