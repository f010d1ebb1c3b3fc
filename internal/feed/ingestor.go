// Package feed queries the read-optimized cache service and reassembles its
// multiplexed reply stream into a FeedAggregate.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nostr-core/internal/logging"
	"nostr-core/internal/metrics"
	"nostr-core/internal/types"
)

// DefaultQueryTimeout bounds how long a query collects frames.
const DefaultQueryTimeout = 10 * time.Second

const closeTimeout = 2 * time.Second

// Ingestor runs cache queries, one channel per query.
type Ingestor struct {
	url     string
	dialer  Dialer
	timeout time.Duration
}

type Option func(*Ingestor)

// WithTimeout overrides DefaultQueryTimeout.
func WithTimeout(d time.Duration) Option {
	return func(in *Ingestor) {
		if d > 0 {
			in.timeout = d
		}
	}
}

// NewIngestor creates an ingestor for the cache service at url. A nil
// dialer uses WSDialer.
func NewIngestor(url string, dialer Dialer, opts ...Option) *Ingestor {
	if dialer == nil {
		dialer = WSDialer{}
	}
	in := &Ingestor{url: url, dialer: dialer, timeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Query sends q and collects replies until end-of-stream or the query
// deadline. Reaching the deadline is not an error: whatever arrived is
// returned with Partial set.
func (in *Ingestor) Query(ctx context.Context, q Query) (*types.FeedAggregate, error) {
	name, payload, err := q.payload()
	if err != nil {
		return nil, err
	}

	subID := uuid.NewString()
	ctx = logging.WithCorrelation(ctx, subID)
	log := logging.FromContext(ctx)

	agg, err := in.run(ctx, subID, name, payload)
	outcome := "complete"
	switch {
	case err != nil:
		outcome = "error"
	case agg.Partial:
		outcome = "partial"
	}
	metrics.CacheQueries.WithLabelValues(string(q.Mode), outcome).Inc()
	if err != nil {
		log.Warn("cache query failed", "mode", q.Mode, "error", err)
		return nil, err
	}
	log.Debug("cache query done", "mode", q.Mode, "events", len(agg.Events), "partial", agg.Partial)
	return agg, nil
}

func (in *Ingestor) run(ctx context.Context, subID, name string, payload map[string]any) (*types.FeedAggregate, error) {
	queryCtx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	ch, err := in.dialer.Dial(queryCtx, in.url)
	if err != nil {
		return nil, fmt.Errorf("dial cache service: %w", err)
	}
	defer func() {
		closeFrame, _ := json.Marshal([]any{"CLOSE", subID})
		sendCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := ch.Send(sendCtx, closeFrame); err != nil {
			logging.FromContext(ctx).Debug("cache: CLOSE not sent", "error", err)
		}
		ch.Close()
	}()

	req, err := json.Marshal([]any{"REQ", subID, map[string]any{"cache": []any{name, payload}}})
	if err != nil {
		return nil, fmt.Errorf("marshal cache query: %w", err)
	}
	if err := ch.Send(queryCtx, req); err != nil {
		return nil, fmt.Errorf("send cache query: %w", err)
	}

	agg := NewAggregator(subID)
	for {
		frame, err := ch.Receive(queryCtx)
		if err != nil {
			// The transport can give up on the deadline a moment before the
			// context timer fires.
			if deadline, ok := queryCtx.Deadline(); ok && !time.Now().Before(deadline) {
				<-queryCtx.Done()
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
				return agg.Result(true), nil
			}
			return nil, fmt.Errorf("receive cache reply: %w", err)
		}
		if agg.Ingest(frame) {
			return agg.Result(false), nil
		}
	}
}
