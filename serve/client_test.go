package serve

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sudhar "github.com/sudhar-ne/sudhar"
)

func TestClientCorrect(t *testing.T) {
	srv := newTestServer(t, newStub())
	c := &Client{SockPath: srv.SockPath()}

	resp, err := c.Correct(context.Background(), &sudhar.Request{RequestID: 9, Model: "mBART", Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 9, resp.RequestID)
	assert.Equal(t, "mBART", resp.Model)
}

func TestClientConfig(t *testing.T) {
	stub := newStub()
	stub.models = []sudhar.ModelInfo{{Label: "mT5"}}
	srv := newTestServer(t, stub)
	c := &Client{SockPath: srv.SockPath()}

	resp, err := c.Config(context.Background(), "models")
	require.NoError(t, err)
	assert.Equal(t, stub.models, resp.Models)
}

func TestClientNoDaemon(t *testing.T) {
	c := &Client{SockPath: filepath.Join(t.TempDir(), "absent.sock")}
	_, err := c.Config(context.Background(), "models")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.sock")
}

func TestClientCancelled(t *testing.T) {
	srv := newTestServer(t, &slowCorrector{})
	c := &Client{SockPath: srv.SockPath()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Correct(ctx, &sudhar.Request{RequestID: 1, Model: "mT5", Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
