package realtime

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(h *Hub, userID, sessionID string) *Client {
	c := &Client{
		UserID:    userID,
		SessionID: sessionID,
		send:      make(chan []byte, sendBufferSize),
		hub:       h,
	}
	h.register(c)
	return c
}

func received(c *Client) []string {
	var out []string
	for {
		select {
		case m := <-c.send:
			out = append(out, string(m))
		default:
			return out
		}
	}
}

func TestBroadcastWithoutPermissionsReachesEveryone(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := testClient(h, "u1", "s1")
	b := testClient(h, "u2", "s2")

	require.NoError(t, h.Broadcast(context.Background(), []byte(`{"type":"notification"}`)))

	assert.Len(t, received(a), 1)
	assert.Len(t, received(b), 1)
}

func TestBroadcastScopedToUsers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a := testClient(h, "u1", "s1")
	b := testClient(h, "u2", "s2")

	msg := []byte(`{"type":"workspaceChange","permissions":{"users":["u1"]}}`)
	require.NoError(t, h.Broadcast(context.Background(), msg))

	assert.Len(t, received(a), 1)
	assert.Empty(t, received(b))
}

func TestBroadcastScopedToSession(t *testing.T) {
	h := NewHub(zerolog.Nop())
	s1 := testClient(h, "u1", "s1")
	s2 := testClient(h, "u1", "s2")

	msg := []byte(`{"type":"sessionExpiration","permissions":{"users":["u1"],"sessionIds":["s1"]}}`)
	require.NoError(t, h.Broadcast(context.Background(), msg))

	assert.Len(t, received(s1), 1)
	assert.Empty(t, received(s2), "another session of the same user is out of scope")
}

func TestBroadcastRejectsMalformedEnvelope(t *testing.T) {
	h := NewHub(zerolog.Nop())
	assert.Error(t, h.Broadcast(context.Background(), []byte("not json")))
}

func TestBroadcastDuringDisconnect(t *testing.T) {
	h := NewHub(zerolog.Nop())
	msg := []byte(`{"type":"notification"}`)

	// Clients connecting and dropping while broadcasts are in flight must
	// never crash the hub; late messages for a gone client are discarded.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			c := testClient(h, "u1", "s1")
			c.close()
		}
	}()
	for alive := true; alive; {
		select {
		case <-done:
			alive = false
		default:
		}
		require.NoError(t, h.Broadcast(context.Background(), msg))
	}

	assert.Zero(t, h.ClientCount())
}

func TestSendAfterCloseIsDiscarded(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := testClient(h, "u1", "s1")
	c.close()

	assert.True(t, c.trySend([]byte(`{"type":"notification"}`)))
}

func TestClientCount(t *testing.T) {
	h := NewHub(zerolog.Nop())
	assert.Zero(t, h.ClientCount())

	c := testClient(h, "u1", "s1")
	assert.Equal(t, 1, h.ClientCount())

	c.close()
	assert.Zero(t, h.ClientCount())
}
