package memory

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://path/page.html", uri)

	payload[0] = 'C'
	got, err := store.GetObject(context.Background(), "path/page.html")
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	got[0] = 'X'
	again, err := store.GetObject(context.Background(), "path/page.html")
	require.NoError(t, err)
	assert.Equal(t, "content", string(again))
	assert.Equal(t, []string{"path/page.html"}, store.Keys())
	assert.Equal(t, 1, store.Writes())
}

func TestBlobStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
