package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"nostr-core/internal/pending"
	"nostr-core/internal/types"
	"nostr-core/internal/util"
)

const (
	DefaultAckTimeout  = 5 * time.Second
	DefaultIdleTimeout = 2 * time.Minute
	cleanupInterval    = 60 * time.Second
	writeTimeout       = 10 * time.Second
	subscriptionBuffer = 100
)

var (
	ErrUnsafeRelay      = errors.New("relay URL blocked: unsafe destination")
	ErrConnectionClosed = errors.New("relay connection closed")
	ErrPoolClosed       = errors.New("relay pool closed")
)

// Ack is one relay's answer to a published event.
type Ack struct {
	Relay    string
	Accepted bool
	Message  string
	Err      error
}

// Subscription represents an active subscription on a relay connection
type Subscription struct {
	ID     string
	Relay  string
	Events chan types.Event
	EOSE   chan struct{} // closed when the relay reports end of stored events
	Done   chan struct{}

	closeOnce sync.Once
	eoseOnce  sync.Once
}

// NewSubscription creates an unattached subscription. Transports other than
// Pool use it to hand out subscriptions of the same shape.
func NewSubscription(id, relayURL string) *Subscription {
	return &Subscription{
		ID:     id,
		Relay:  relayURL,
		Events: make(chan types.Event, subscriptionBuffer),
		EOSE:   make(chan struct{}),
		Done:   make(chan struct{}),
	}
}

// Close safely closes the Done channel exactly once
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.Done)
	})
}

// SignalEOSE marks the end of stored events. Safe to call more than once.
func (s *Subscription) SignalEOSE() {
	s.eoseOnce.Do(func() {
		close(s.EOSE)
	})
}

// Deliver hands evt to the subscriber, dropping it if the buffer is full or
// the subscription is done.
func (s *Subscription) Deliver(evt types.Event) bool {
	select {
	case <-s.Done:
		return false
	default:
	}
	select {
	case s.Events <- evt:
		return true
	case <-s.Done:
		return false
	default:
		return false
	}
}

// Options configures a Pool.
type Options struct {
	// AllowPrivateHosts permits loopback and private-range relays (tests, local dev).
	AllowPrivateHosts bool
	AckTimeout        time.Duration
	IdleTimeout       time.Duration
	Dialer            *websocket.Dialer
}

// relayConn manages a single websocket connection with multiple subscriptions
type relayConn struct {
	conn          *websocket.Conn
	relayURL      string
	mu            sync.Mutex
	writeMu       sync.Mutex
	subscriptions map[string]*Subscription
	acks          map[string]struct{} // pending ack keys for this connection
	closed        bool
	lastActivity  time.Time
}

// Pool manages one websocket connection per relay.
type Pool struct {
	mu          sync.RWMutex
	connections map[string]*relayConn
	acks        *pending.Registry[Ack]
	opts        Options
	done        chan struct{}
	closeOnce   sync.Once
}

// NewPool creates a pool and starts its idle-connection reaper.
func NewPool(opts Options) *Pool {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	p := &Pool{
		connections: make(map[string]*relayConn),
		acks:        pending.NewRegistry[Ack](),
		opts:        opts,
		done:        make(chan struct{}),
	}
	go p.cleanupLoop()
	return p
}

// IsRelayURLSafe validates that a relay URL is a ws/wss URL that does not
// point into private address space, unless allowPrivate is set.
func IsRelayURLSafe(ctx context.Context, relayURL string, allowPrivate bool) bool {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return false
	}
	host := parsed.Hostname()
	if host == "" {
		return false
	}
	if allowPrivate {
		return true
	}
	if util.IsPrivateHost(host) {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		// unresolvable now; the dial will fail on its own
		return true
	}
	for _, addr := range addrs {
		if !isRelayIPSafe(addr.IP) {
			return false
		}
	}
	return true
}

func isRelayIPSafe(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast())
}

func ackKey(relayURL, eventID string) string {
	return relayURL + "|" + eventID
}

// getOrCreateConn gets an existing connection or creates a new one
func (p *Pool) getOrCreateConn(ctx context.Context, relayURL string) (*relayConn, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	if !IsRelayURLSafe(ctx, relayURL, p.opts.AllowPrivateHosts) {
		return nil, ErrUnsafeRelay
	}

	p.mu.RLock()
	rc := p.connections[relayURL]
	p.mu.RUnlock()
	if rc != nil && !rc.isClosed() {
		return rc, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	rc = p.connections[relayURL]
	if rc != nil && !rc.isClosed() {
		return rc, nil
	}

	slog.Debug("relay pool: creating connection", "relay", relayURL)
	conn, _, err := p.opts.Dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", relayURL, err)
	}

	rc = &relayConn{
		conn:          conn,
		relayURL:      relayURL,
		subscriptions: make(map[string]*Subscription),
		acks:          make(map[string]struct{}),
		lastActivity:  time.Now(),
	}
	p.connections[relayURL] = rc

	go rc.readLoop(p.acks)

	return rc, nil
}

// Subscribe sends a REQ for filter on relayURL.
func (p *Pool) Subscribe(ctx context.Context, relayURL, subID string, filter types.Filter) (*Subscription, error) {
	const maxRetries = 3
	var rc *relayConn
	var err error
	connected := false

	for attempt := 0; attempt < maxRetries; attempt++ {
		rc, err = p.getOrCreateConn(ctx, relayURL)
		if err != nil {
			return nil, err
		}

		rc.mu.Lock()
		if rc.closed {
			rc.mu.Unlock()
			p.mu.Lock()
			if p.connections[relayURL] == rc {
				delete(p.connections, relayURL)
			}
			p.mu.Unlock()
			continue
		}
		connected = true
		break
	}
	if !connected {
		return nil, errors.New("failed to establish connection after retries")
	}

	sub := NewSubscription(subID, relayURL)
	// rc.mu is still held from the loop
	rc.subscriptions[subID] = sub
	rc.mu.Unlock()

	if err := rc.writeJSON([]interface{}{"REQ", subID, filter}); err != nil {
		rc.mu.Lock()
		delete(rc.subscriptions, subID)
		rc.mu.Unlock()
		p.dropConn(rc)
		return nil, fmt.Errorf("send REQ: %w", err)
	}

	rc.touch()
	return sub, nil
}

// Unsubscribe sends CLOSE for sub and releases it.
func (p *Pool) Unsubscribe(relayURL string, sub *Subscription) {
	if sub == nil {
		return
	}
	defer sub.Close()

	p.mu.RLock()
	rc := p.connections[relayURL]
	p.mu.RUnlock()
	if rc == nil {
		return
	}

	rc.mu.Lock()
	_, exists := rc.subscriptions[sub.ID]
	shouldSendClose := !rc.closed && exists
	if exists {
		delete(rc.subscriptions, sub.ID)
	}
	rc.mu.Unlock()

	// best effort, the connection may already be gone
	if shouldSendClose {
		if err := rc.writeJSON([]interface{}{"CLOSE", sub.ID}); err != nil {
			slog.Debug("relay pool: CLOSE failed", "relay", relayURL, "sub_id", sub.ID, "error", err)
		}
	}
}

// Publish sends evt to every relay concurrently and waits for each OK frame.
// The result has one Ack per relay, in the order given.
func (p *Pool) Publish(ctx context.Context, evt *types.Event, relays []string) []Ack {
	acks := make([]Ack, len(relays))
	var g errgroup.Group
	for i, relayURL := range relays {
		i, relayURL := i, relayURL
		g.Go(func() error {
			acks[i] = p.publishOne(ctx, relayURL, evt)
			return nil
		})
	}
	_ = g.Wait()
	return acks
}

func (p *Pool) publishOne(ctx context.Context, relayURL string, evt *types.Event) Ack {
	ack := Ack{Relay: relayURL}

	rc, err := p.getOrCreateConn(ctx, relayURL)
	if err != nil {
		ack.Err = err
		return ack
	}

	key := ackKey(relayURL, evt.ID)
	handle, err := p.acks.Register(key, p.opts.AckTimeout)
	if err != nil {
		ack.Err = err
		return ack
	}
	rc.mu.Lock()
	rc.acks[key] = struct{}{}
	rc.mu.Unlock()
	defer func() {
		rc.mu.Lock()
		delete(rc.acks, key)
		rc.mu.Unlock()
	}()

	if err := rc.writeJSON([]interface{}{"EVENT", evt}); err != nil {
		handle.Cancel()
		p.dropConn(rc)
		ack.Err = fmt.Errorf("send EVENT: %w", err)
		return ack
	}
	rc.touch()

	got, err := handle.Wait(ctx)
	if err != nil {
		ack.Err = err
		return ack
	}
	return got
}

// dropConn closes rc and forgets it, unless a newer connection already
// replaced it.
func (p *Pool) dropConn(rc *relayConn) {
	p.mu.Lock()
	if p.connections[rc.relayURL] == rc {
		delete(p.connections, rc.relayURL)
	}
	p.mu.Unlock()

	rc.markClosed(p.acks)
}

// Close shuts every connection and stops the reaper.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	p.mu.Lock()
	conns := p.connections
	p.connections = make(map[string]*relayConn)
	p.mu.Unlock()

	for _, rc := range conns {
		rc.markClosed(p.acks)
	}
	// publishes that registered after their connection was collected
	p.acks.RejectAll(ErrPoolClosed)
}

func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.cleanup()
		}
	}
}

// cleanup removes connections that have been idle too long
func (p *Pool) cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for relayURL, rc := range p.connections {
		rc.mu.Lock()
		closed := rc.closed
		idle := len(rc.subscriptions) == 0 && len(rc.acks) == 0 && now.Sub(rc.lastActivity) > p.opts.IdleTimeout
		rc.mu.Unlock()

		if closed || idle {
			if !closed {
				slog.Debug("relay pool: closing idle connection", "relay", relayURL)
				rc.markClosed(p.acks)
			}
			delete(p.connections, relayURL)
		}
	}
}

func (rc *relayConn) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

func (rc *relayConn) touch() {
	rc.mu.Lock()
	rc.lastActivity = time.Now()
	rc.mu.Unlock()
}

func (rc *relayConn) writeJSON(v interface{}) error {
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()

	rc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer rc.conn.SetWriteDeadline(time.Time{})

	return rc.conn.WriteJSON(v)
}

// readLoop continuously reads from the connection and routes messages
func (rc *relayConn) readLoop(acks *pending.Registry[Ack]) {
	defer rc.markClosed(acks)

	for {
		var msg []json.RawMessage
		if err := rc.conn.ReadJSON(&msg); err != nil {
			if !rc.isClosed() {
				slog.Debug("relay pool: read error", "relay", rc.relayURL, "error", err)
			}
			return
		}
		rc.touch()

		if len(msg) < 2 {
			continue
		}
		var msgType string
		if err := json.Unmarshal(msg[0], &msgType); err != nil {
			continue
		}

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			var subID string
			var evt types.Event
			if json.Unmarshal(msg[1], &subID) != nil || json.Unmarshal(msg[2], &evt) != nil {
				continue
			}
			if sub := rc.subscription(subID); sub != nil {
				if !sub.Deliver(evt) {
					slog.Debug("relay pool: dropped event", "relay", rc.relayURL, "sub_id", subID)
				}
			}

		case "EOSE":
			var subID string
			if json.Unmarshal(msg[1], &subID) != nil {
				continue
			}
			if sub := rc.subscription(subID); sub != nil {
				sub.SignalEOSE()
			}

		case "OK":
			if len(msg) < 3 {
				continue
			}
			var eventID string
			var accepted bool
			if json.Unmarshal(msg[1], &eventID) != nil || json.Unmarshal(msg[2], &accepted) != nil {
				continue
			}
			var message string
			if len(msg) >= 4 {
				_ = json.Unmarshal(msg[3], &message)
			}
			acks.Resolve(ackKey(rc.relayURL, eventID), Ack{Relay: rc.relayURL, Accepted: accepted, Message: message})

		case "CLOSED":
			var subID string
			if json.Unmarshal(msg[1], &subID) != nil {
				continue
			}
			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			delete(rc.subscriptions, subID)
			rc.mu.Unlock()
			if sub != nil {
				sub.Close()
			}

		case "NOTICE":
			var notice string
			_ = json.Unmarshal(msg[1], &notice)
			slog.Info("relay pool: NOTICE", "relay", rc.relayURL, "notice", notice)

		case "AUTH":
			slog.Debug("relay pool: AUTH challenge ignored", "relay", rc.relayURL)
		}
	}
}

func (rc *relayConn) subscription(subID string) *Subscription {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.subscriptions[subID]
}

// markClosed marks the connection as closed, ends its subscriptions and
// fails its outstanding acks.
func (rc *relayConn) markClosed(acks *pending.Registry[Ack]) {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	rc.conn.Close()

	subs := rc.subscriptions
	rc.subscriptions = make(map[string]*Subscription)
	keys := make([]string, 0, len(rc.acks))
	for key := range rc.acks {
		keys = append(keys, key)
	}
	rc.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	for _, key := range keys {
		acks.Reject(key, ErrConnectionClosed)
	}
}
