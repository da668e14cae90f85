package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testLogger())
	go hub.Run()
	t.Cleanup(func() { hub.Shutdown(context.Background()) })
	return hub
}

// registerClient hands the hub a bare client and waits for registration to
// take effect.
func registerClient(t *testing.T, hub *Hub, buffer int) *Client {
	t.Helper()
	client := &Client{
		hub:    hub,
		send:   make(chan []byte, buffer),
		id:     "test-client",
		logger: testLogger(),
	}
	hub.register <- client

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)
	return client
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case data, ok := <-client.send:
		require.True(t, ok, "send channel closed")
		var event Event
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubBroadcastsBuildLifecycle(t *testing.T) {
	hub := startHub(t)
	client := registerClient(t, hub, 4)

	hub.BuildStarted("build-1")
	event := receiveEvent(t, client)
	assert.Equal(t, EventBuildStarted, event.Type)
	assert.Equal(t, "build-1", event.BuildID)
	assert.False(t, event.Timestamp.IsZero())

	hub.BuildCompleted("build-1", 12, 1)
	event = receiveEvent(t, client)
	assert.Equal(t, EventBuildCompleted, event.Type)
	assert.Equal(t, 12, event.Resolved)
	assert.Equal(t, 1, event.Failed)

	hub.BuildFailed("build-2", errors.New("scenario unreadable"))
	event = receiveEvent(t, client)
	assert.Equal(t, EventBuildFailed, event.Type)
	assert.Equal(t, "build-2", event.BuildID)
	assert.Equal(t, "scenario unreadable", event.Error)
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := startHub(t)
	client := registerClient(t, hub, 1)

	hub.unregister <- client

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := <-client.send
	assert.False(t, ok)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t)
	client := registerClient(t, hub, 1)

	// Fill the client's buffer, then broadcast again without draining.
	hub.BuildStarted("build-1")
	require.Eventually(t, func() bool {
		return len(client.send) == 1
	}, time.Second, 5*time.Millisecond)

	hub.BuildStarted("build-2")

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHubShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub(testLogger())
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	client := registerClient(t, hub, 1)

	require.NoError(t, hub.Shutdown(context.Background()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub loop did not stop")
	}

	_, ok := <-client.send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount())

	// Shutdown is idempotent.
	assert.NoError(t, hub.Shutdown(context.Background()))
}
