package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"nostr-core/internal/logging"
	"nostr-core/internal/metrics"
	"nostr-core/internal/nips"
	"nostr-core/internal/pending"
	"nostr-core/internal/relay"
	"nostr-core/internal/types"
	"nostr-core/internal/util"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = rate.Limit(5)
	DefaultRateBurst = 5
)

// ErrTimeout is matched by errors.Is for every wallet reply timeout.
var ErrTimeout = pending.ErrTimeout

// RPCError is an error reported by the wallet itself.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NIP-47 error codes
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeRestricted          = "RESTRICTED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
	CodeOther               = "OTHER"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeNotFound            = "NOT_FOUND"
)

// Response is a decrypted wallet reply.
type Response struct {
	ResultType string          `json:"result_type"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *RPCError       `json:"error,omitempty"`
}

type request struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// Exchange describes one in-flight call.
type Exchange struct {
	Method    string
	Params    map[string]any
	RequestID string
	Deadline  time.Time
}

// Transport is the relay access the client needs. *relay.Pool satisfies it.
type Transport interface {
	Subscribe(ctx context.Context, relayURL, subID string, filter types.Filter) (*relay.Subscription, error)
	Unsubscribe(relayURL string, sub *relay.Subscription)
	Publish(ctx context.Context, evt *types.Event, relays []string) []relay.Ack
}

// Client issues NIP-47 calls. It is safe for concurrent use; each call is
// isolated by its own request id, subscription and timer.
type Client struct {
	transport Transport
	timeout   time.Duration
	pending   *pending.Registry[*Response]

	rateLimit rate.Limit
	rateBurst int
	limitMu   sync.Mutex
	limiters  map[string]*rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit sets the per-connection request rate. A zero limit disables it.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.rateLimit = limit
		c.rateBurst = burst
	}
}

// NewClient creates a client on top of t.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		timeout:   DefaultTimeout,
		pending:   pending.NewRegistry[*Response](),
		rateLimit: DefaultRateLimit,
		rateBurst: DefaultRateBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending returns the number of calls awaiting a reply.
func (c *Client) Pending() int {
	return c.pending.Len()
}

func (c *Client) limiter(conn *Connection) *rate.Limiter {
	if c.rateLimit == 0 {
		return nil
	}
	key := conn.WalletPubKey + ":" + conn.ClientPubKey()
	c.limitMu.Lock()
	defer c.limitMu.Unlock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(c.rateLimit, c.rateBurst)
		c.limiters[key] = l
	}
	return l
}

// Call sends method to the wallet and waits for the correlated reply. It
// returns the reply's result, an *RPCError when the wallet answered with an
// error, or an error matching ErrTimeout when nothing arrived in time. The
// reply subscription and pending entry are released on every path.
func (c *Client) Call(ctx context.Context, conn *Connection, method string, params map[string]any) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.call(ctx, conn, method, params)

	outcome := "ok"
	var rpcErr *RPCError
	switch {
	case err == nil:
	case errors.As(err, &rpcErr):
		outcome = "wallet_error"
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	metrics.WalletRPCs.WithLabelValues(method, outcome).Inc()
	metrics.WalletRPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	return resp, err
}

func (c *Client) call(ctx context.Context, conn *Connection, method string, params map[string]any) (json.RawMessage, error) {
	if conn == nil {
		return nil, errors.New("no wallet connection")
	}
	if l := c.limiter(conn); l != nil {
		if err := l.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	if params == nil {
		params = map[string]any{}
	}

	payload, err := json.Marshal(request{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	ciphertext, err := conn.encrypt(string(payload))
	if err != nil {
		return nil, fmt.Errorf("encrypt request: %w", err)
	}

	evt, err := newRequestEvent(conn, ciphertext)
	if err != nil {
		return nil, err
	}

	ex := Exchange{Method: method, Params: params, RequestID: evt.ID, Deadline: time.Now().Add(c.timeout)}
	log := logging.FromContext(logging.WithCorrelation(ctx, util.ShortID(ex.RequestID))).With("method", method)

	// the timer starts here so the deadline covers subscribe and publish too
	handle, err := c.pending.Register(ex.RequestID, c.timeout)
	if err != nil {
		return nil, err
	}
	defer handle.Cancel()

	// subscribe before publishing; some relays only deliver replies to a
	// subscription that already names the request id
	subID := "nwc-" + uuid.NewString()
	filter := types.Filter{
		Kinds:   []int{types.KindWalletReply},
		Authors: []string{conn.WalletPubKey},
		ETags:   []string{ex.RequestID},
	}
	sub, err := c.transport.Subscribe(ctx, conn.RelayURL, subID, filter)
	if err != nil {
		return nil, fmt.Errorf("subscribe for reply: %w", err)
	}
	defer c.transport.Unsubscribe(conn.RelayURL, sub)

	stop := make(chan struct{})
	defer close(stop)
	go c.watch(conn, ex.RequestID, sub, stop, log)

	log.Debug("wallet: sending request", "deadline", ex.Deadline)
	for _, ack := range c.transport.Publish(ctx, evt, []string{conn.RelayURL}) {
		switch {
		case ack.Err != nil && errors.Is(ack.Err, pending.ErrTimeout):
			// relays are not required to ack; keep waiting for the wallet
			log.Debug("wallet: no OK from relay", "relay", ack.Relay)
		case ack.Err != nil:
			return nil, fmt.Errorf("publish request: %w", ack.Err)
		case !ack.Accepted:
			return nil, fmt.Errorf("relay rejected request: %s", ack.Message)
		}
	}

	resp, err := handle.Wait(ctx)
	if err != nil {
		log.Debug("wallet: request failed", "error", err)
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.ResultType != "" && resp.ResultType != method {
		return nil, fmt.Errorf("unexpected result type: %s", resp.ResultType)
	}
	return resp.Result, nil
}

// watch feeds matching replies from sub into the pending registry until the
// call returns or the subscription ends.
func (c *Client) watch(conn *Connection, requestID string, sub *relay.Subscription, stop <-chan struct{}, log *slog.Logger) {
	for {
		select {
		case <-stop:
			return
		case <-sub.Done:
			c.pending.Reject(requestID, errors.New("wallet relay subscription closed"))
			return
		case evt := <-sub.Events:
			resp, err := c.decodeReply(conn, requestID, &evt)
			if err != nil {
				log.Debug("wallet: ignoring event", "event_id", util.ShortID(evt.ID), "reason", err)
				continue
			}
			c.pending.Resolve(requestID, resp)
		}
	}
}

func (c *Client) decodeReply(conn *Connection, requestID string, evt *types.Event) (*Response, error) {
	if evt.Kind != types.KindWalletReply {
		return nil, fmt.Errorf("kind %d", evt.Kind)
	}
	if evt.PubKey != conn.WalletPubKey {
		return nil, errors.New("not from wallet")
	}
	if util.GetTagValue(evt.Tags, "e") != requestID {
		return nil, errors.New("not for this request")
	}
	if err := nips.VerifyEvent(evt); err != nil {
		return nil, err
	}
	plaintext, err := conn.decrypt(evt.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(plaintext), &resp); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	return &resp, nil
}

// newRequestEvent creates a signed kind 23194 event
func newRequestEvent(conn *Connection, ciphertext string) (*types.Event, error) {
	tags := [][]string{{"p", conn.WalletPubKey}}
	if conn.Encryption == EncryptionNip44 {
		tags = append(tags, []string{"encryption", string(EncryptionNip44)})
	}
	evt := &types.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      types.KindWalletReq,
		Tags:      tags,
		Content:   ciphertext,
	}
	if err := nips.SignEvent(conn.Secret, evt); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return evt, nil
}
