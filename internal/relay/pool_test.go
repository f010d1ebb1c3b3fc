package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-core/internal/pending"
	"nostr-core/internal/types"
)

// fakeRelay is a minimal NIP-01 relay: it acks events, answers REQ with its
// stored events followed by EOSE, and records CLOSE frames.
type fakeRelay struct {
	srv *httptest.Server

	mu       sync.Mutex
	received []types.Event
	closed   []string
	stored   []types.Event
	silent   bool
	rejectOK string
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{}
	upgrader := websocket.Upgrader{}
	fr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg []json.RawMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			var typ string
			_ = json.Unmarshal(msg[0], &typ)
			switch typ {
			case "EVENT":
				var evt types.Event
				_ = json.Unmarshal(msg[1], &evt)
				fr.mu.Lock()
				fr.received = append(fr.received, evt)
				silent, reject := fr.silent, fr.rejectOK
				fr.mu.Unlock()
				if silent {
					continue
				}
				_ = conn.WriteJSON([]interface{}{"OK", evt.ID, reject == "", reject})
			case "REQ":
				var subID string
				_ = json.Unmarshal(msg[1], &subID)
				fr.mu.Lock()
				stored := append([]types.Event(nil), fr.stored...)
				fr.mu.Unlock()
				for _, evt := range stored {
					_ = conn.WriteJSON([]interface{}{"EVENT", "other-sub", evt})
					_ = conn.WriteJSON([]interface{}{"EVENT", subID, evt})
				}
				_ = conn.WriteJSON([]interface{}{"EOSE", subID})
			case "CLOSE":
				var subID string
				_ = json.Unmarshal(msg[1], &subID)
				fr.mu.Lock()
				fr.closed = append(fr.closed, subID)
				fr.mu.Unlock()
			}
		}
	}))
	t.Cleanup(fr.srv.Close)
	return fr
}

func (fr *fakeRelay) URL() string {
	return "ws" + strings.TrimPrefix(fr.srv.URL, "http")
}

func (fr *fakeRelay) configure(fn func(*fakeRelay)) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fn(fr)
}

func (fr *fakeRelay) closedSubs() []string {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return append([]string(nil), fr.closed...)
}

func newTestPool(t *testing.T, ackTimeout time.Duration) *Pool {
	t.Helper()
	p := NewPool(Options{AllowPrivateHosts: true, AckTimeout: ackTimeout})
	t.Cleanup(p.Close)
	return p
}

func TestPoolPublishCollectsAcks(t *testing.T) {
	a, b := newFakeRelay(t), newFakeRelay(t)
	b.configure(func(fr *fakeRelay) { fr.rejectOK = "blocked: not a member" })
	p := newTestPool(t, time.Second)

	evt := &types.Event{ID: "e1", Kind: 1, Tags: [][]string{}, Content: "hi"}
	acks := p.Publish(context.Background(), evt, []string{a.URL(), b.URL()})
	require.Len(t, acks, 2)

	assert.Equal(t, a.URL(), acks[0].Relay)
	assert.NoError(t, acks[0].Err)
	assert.True(t, acks[0].Accepted)

	assert.Equal(t, b.URL(), acks[1].Relay)
	assert.NoError(t, acks[1].Err)
	assert.False(t, acks[1].Accepted)
	assert.Equal(t, "blocked: not a member", acks[1].Message)
}

func TestPoolPublishAckTimeout(t *testing.T) {
	fr := newFakeRelay(t)
	fr.configure(func(fr *fakeRelay) { fr.silent = true })
	p := newTestPool(t, 100*time.Millisecond)

	acks := p.Publish(context.Background(), &types.Event{ID: "e2", Kind: 1}, []string{fr.URL()})
	require.Len(t, acks, 1)
	assert.ErrorIs(t, acks[0].Err, pending.ErrTimeout)
	assert.Equal(t, 0, p.acks.Len())
}

func TestPoolSubscribeRoutesBySubscriptionID(t *testing.T) {
	fr := newFakeRelay(t)
	fr.configure(func(fr *fakeRelay) {
		fr.stored = []types.Event{{ID: "s1", Kind: 1}, {ID: "s2", Kind: 1}}
	})
	p := newTestPool(t, time.Second)

	sub, err := p.Subscribe(context.Background(), fr.URL(), "sub-1", types.Filter{Kinds: []int{1}})
	require.NoError(t, err)

	select {
	case <-sub.EOSE:
	case <-time.After(2 * time.Second):
		t.Fatal("no EOSE")
	}

	var ids []string
	for len(sub.Events) > 0 {
		evt := <-sub.Events
		ids = append(ids, evt.ID)
	}
	assert.Equal(t, []string{"s1", "s2"}, ids)

	p.Unsubscribe(fr.URL(), sub)
	<-sub.Done
	assert.Eventually(t, func() bool {
		return len(fr.closedSubs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"sub-1"}, fr.closedSubs())
}

func TestPoolClosedConnectionEndsSubscriptions(t *testing.T) {
	fr := newFakeRelay(t)
	p := newTestPool(t, time.Second)

	sub, err := p.Subscribe(context.Background(), fr.URL(), "sub-2", types.Filter{Kinds: []int{1}})
	require.NoError(t, err)

	p.mu.RLock()
	rc := p.connections[fr.URL()]
	p.mu.RUnlock()
	require.NotNil(t, rc)
	p.dropConn(rc)

	p.mu.RLock()
	_, still := p.connections[fr.URL()]
	p.mu.RUnlock()
	assert.False(t, still)
	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("subscription not closed with its connection")
	}
}

func TestIsRelayURLSafe(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		url          string
		allowPrivate bool
		want         bool
	}{
		{"wss://relay.example.com", false, true},
		{"ws://203.0.113.10:7777", false, true},
		{"https://relay.example.com", false, false},
		{"wss://", false, false},
		{"ws://localhost:7777", false, false},
		{"ws://127.0.0.1:7777", false, false},
		{"ws://10.0.0.5", false, false},
		{"ws://169.254.169.254", false, false},
		{"wss://relay.internal", false, false},
		{"ws://127.0.0.1:7777", true, true},
		{"http://127.0.0.1:7777", true, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRelayURLSafe(ctx, tc.url, tc.allowPrivate), tc.url)
	}
}

func TestPoolRejectsUnsafeRelay(t *testing.T) {
	p := NewPool(Options{})
	defer p.Close()

	acks := p.Publish(context.Background(), &types.Event{ID: "e3"}, []string{"ws://127.0.0.1:1"})
	require.Len(t, acks, 1)
	assert.ErrorIs(t, acks[0].Err, ErrUnsafeRelay)
}

func TestPoolCloseFailsPendingAcks(t *testing.T) {
	fr := newFakeRelay(t)
	fr.configure(func(fr *fakeRelay) { fr.silent = true })
	p := NewPool(Options{AllowPrivateHosts: true, AckTimeout: 10 * time.Second})

	done := make(chan []Ack, 1)
	go func() {
		done <- p.Publish(context.Background(), &types.Event{ID: "e3", Kind: 1}, []string{fr.URL()})
	}()
	require.Eventually(t, func() bool { return p.acks.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// an ack registered outside any connection
	orphan, err := p.acks.Register(ackKey("wss://gone.example.com", "e4"), 10*time.Second)
	require.NoError(t, err)

	p.Close()

	select {
	case acks := <-done:
		require.Len(t, acks, 1)
		assert.Error(t, acks[0].Err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish still waiting after Close")
	}
	_, err = orphan.Wait(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Equal(t, 0, p.acks.Len())
}
