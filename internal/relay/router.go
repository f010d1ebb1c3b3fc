// Package relay decides where a message may go and carries it there. The
// Router applies the sharing policy; Pool is the websocket transport.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nostr-core/internal/metrics"
	"nostr-core/internal/policy"
	"nostr-core/internal/signer"
	"nostr-core/internal/storage"
	"nostr-core/internal/types"
	"nostr-core/internal/util"
)

var (
	// ErrNotDelivered means no relay in the destination set accepted the event.
	ErrNotDelivered = errors.New("event not accepted by any relay")
	ErrNoSigner     = errors.New("router has no signer")
)

// Publisher is the transport the router hands its destination set to.
type Publisher interface {
	Publish(ctx context.Context, evt *types.Event, relays []string) []Ack
}

// Report describes what happened to one publish.
type Report struct {
	EventID      string
	Decision     policy.Decision
	Destinations DestinationSet
	Acks         []Ack
}

// Accepted counts relays that acknowledged the event.
func (r *Report) Accepted() int {
	n := 0
	for _, ack := range r.Acks {
		if ack.Err == nil && ack.Accepted {
			n++
		}
	}
	return n
}

// Router routes events to the private relay and, when policy allows, to the
// public relay set.
type Router struct {
	classifier   *policy.Classifier
	publisher    Publisher
	privateRelay string
	publicRelays []string

	signer  signer.Signer
	storage *storage.Gateway
}

// NewRouter creates a router. privateRelay must be set.
func NewRouter(classifier *policy.Classifier, publisher Publisher, privateRelay string, publicRelays []string) *Router {
	return &Router{
		classifier:   classifier,
		publisher:    publisher,
		privateRelay: privateRelay,
		publicRelays: append([]string(nil), publicRelays...),
	}
}

// WithSigner lets the router sign unsigned events and build events from
// drafts. gw may be nil, in which case draft payloads are stored as JSON.
func (r *Router) WithSigner(s signer.Signer, gw *storage.Gateway) *Router {
	r.signer = s
	r.storage = gw
	return r
}

// Route computes the decision and destination set without publishing.
func (r *Router) Route(kind int, tags [][]string, intendedPublic bool) (policy.Decision, DestinationSet) {
	decision := r.classifier.Decide(kind, tags, intendedPublic)
	return decision, r.Destinations(kind, tags, decision)
}

// Publish classifies evt and sends it to exactly the allowed destinations.
// A public request the policy refuses is downgraded to private-only and
// logged; it does not fail the publish. evt is never modified; an unsigned
// event is signed as a copy when the router has a signer.
func (r *Router) Publish(ctx context.Context, evt *types.Event, intendedPublic bool) (*Report, error) {
	if evt == nil {
		return nil, errors.New("nil event")
	}
	if r.privateRelay == "" {
		return nil, errors.New("no private relay configured")
	}

	decision, dest := r.Route(evt.Kind, evt.Tags, intendedPublic)
	if decision.Violation != policy.ViolationNone {
		slog.Warn("relay: policy downgrade to private-only",
			"kind", evt.Kind,
			"reason", string(decision.Violation),
			"event_id", util.ShortID(evt.ID))
		metrics.PolicyDowngrades.WithLabelValues(string(decision.Violation)).Inc()
	}

	out := evt
	if evt.Sig == "" {
		if r.signer == nil {
			return nil, ErrNoSigner
		}
		out = evt.Clone()
		if err := r.signer.SignEvent(ctx, out); err != nil {
			return nil, fmt.Errorf("sign event: %w", err)
		}
	}

	acks := r.publisher.Publish(ctx, out, dest.Relays())
	report := &Report{EventID: out.ID, Decision: decision, Destinations: dest, Acks: acks}

	for _, ack := range acks {
		outcome := "ok"
		switch {
		case ack.Err != nil:
			outcome = "error"
			slog.Debug("relay: publish failed", "relay", ack.Relay, "error", ack.Err)
		case !ack.Accepted:
			outcome = "rejected"
			slog.Debug("relay: publish rejected", "relay", ack.Relay, "message", ack.Message)
		}
		metrics.RelayPublishes.WithLabelValues(dest.Scope(ack.Relay), outcome).Inc()
	}

	slog.Debug("relay: published",
		"event_id", util.ShortID(out.ID),
		"kind", out.Kind,
		"relays", len(acks),
		"accepted", report.Accepted(),
		"public", dest.IncludesPublic())

	if report.Accepted() == 0 {
		return report, ErrNotDelivered
	}
	return report, nil
}

// Draft is an unsigned message. When Data is set it replaces Content: it is
// encrypted through the storage gateway if the message ends up private-only,
// and serialized as JSON otherwise.
type Draft struct {
	Kind    int
	Tags    [][]string
	Content string
	Data    any
}

// PublishDraft builds, encrypts if needed, signs and publishes a draft.
func (r *Router) PublishDraft(ctx context.Context, d Draft, intendedPublic bool) (*Report, error) {
	if r.signer == nil {
		return nil, ErrNoSigner
	}
	pub, err := r.signer.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer public key: %w", err)
	}

	content := d.Content
	if d.Data != nil {
		decision, _ := r.Route(d.Kind, d.Tags, intendedPublic)
		gw := r.storage
		if decision.Public || gw == nil {
			// a gateway without a signer always emits plaintext JSON
			gw = storage.NewGateway(nil)
		}
		content, err = gw.Encrypt(ctx, d.Data)
		if err != nil {
			return nil, err
		}
	}

	evt := &types.Event{
		PubKey:    pub,
		CreatedAt: time.Now().Unix(),
		Kind:      d.Kind,
		Tags:      d.Tags,
		Content:   content,
	}
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}
	if err := r.signer.SignEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	return r.Publish(ctx, evt, intendedPublic)
}
