package feed

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/tidwall/gjson"

	"nostr-core/internal/metrics"
	"nostr-core/internal/types"
	"nostr-core/internal/util"
)

// Cache service kinds carried alongside regular events.
const (
	KindEventStats = 10000100
	KindUserStats  = 10000105
	KindFeedRange  = 10000113
)

// Aggregator reassembles the reply stream of one cache query. It is not
// safe for concurrent use; the ingestor feeds it from a single loop.
type Aggregator struct {
	subID string

	events    []types.Event
	seen      map[string]struct{}
	profiles  map[string]types.Profile
	stats     map[string]types.EventStats
	zaps      map[string][]types.ZapReceipt
	userStats map[string]types.UserStats
	cursor    *types.FeedCursor
}

// NewAggregator creates an aggregator accepting frames for subID only.
func NewAggregator(subID string) *Aggregator {
	return &Aggregator{
		subID:     subID,
		seen:      make(map[string]struct{}),
		profiles:  make(map[string]types.Profile),
		stats:     make(map[string]types.EventStats),
		zaps:      make(map[string][]types.ZapReceipt),
		userStats: make(map[string]types.UserStats),
	}
}

// Ingest applies one raw frame and reports whether it ended the stream.
// Malformed frames and frames for other subscriptions are skipped.
func (a *Aggregator) Ingest(frame []byte) (done bool) {
	if !gjson.ValidBytes(frame) {
		a.malformed("invalid json")
		return false
	}
	msg := gjson.ParseBytes(frame)
	if !msg.IsArray() {
		a.malformed("not an array")
		return false
	}

	typ := msg.Get("0").String()
	if typ == "NOTICE" {
		metrics.CacheFrames.WithLabelValues("notice").Inc()
		parts := msg.Array()
		slog.Debug("cache: notice", "message", parts[len(parts)-1].String())
		return false
	}
	if msg.Get("1").String() != a.subID {
		metrics.CacheFrames.WithLabelValues("foreign").Inc()
		return false
	}

	switch typ {
	case "EOSE":
		metrics.CacheFrames.WithLabelValues("eose").Inc()
		return true
	case "CLOSED":
		metrics.CacheFrames.WithLabelValues("closed").Inc()
		slog.Warn("cache: subscription closed by service", "sub_id", a.subID, "reason", msg.Get("2").String())
		return true
	case "EVENT":
		raw := msg.Get("2")
		if !raw.IsObject() {
			a.malformed("event is not an object")
			return false
		}
		var evt types.Event
		if err := json.Unmarshal([]byte(raw.Raw), &evt); err != nil {
			a.malformed(err.Error())
			return false
		}
		a.ingestEvent(&evt)
	default:
		metrics.CacheFrames.WithLabelValues("other").Inc()
	}
	return false
}

func (a *Aggregator) malformed(reason string) {
	metrics.CacheFrames.WithLabelValues("malformed").Inc()
	slog.Debug("cache: skipping malformed frame", "sub_id", a.subID, "reason", reason)
}

func (a *Aggregator) ingestEvent(evt *types.Event) {
	switch evt.Kind {
	case types.KindProfile:
		a.upsertProfile(evt)
	case types.KindNote, types.KindRepost:
		if _, ok := a.seen[evt.ID]; ok {
			metrics.CacheFrames.WithLabelValues("duplicate").Inc()
			return
		}
		a.seen[evt.ID] = struct{}{}
		a.events = append(a.events, *evt)
		metrics.CacheFrames.WithLabelValues("note").Inc()
	case types.KindZapReceipt:
		receipt, ok := DecodeZapReceipt(evt)
		if !ok {
			a.malformed("zap receipt without event or zapper")
			return
		}
		a.addZap(receipt)
		metrics.CacheFrames.WithLabelValues("zap").Inc()
	case KindEventStats:
		a.mergeEventStats(evt)
	case KindUserStats:
		a.mergeUserStats(evt)
	case KindFeedRange:
		a.setCursor(evt)
	default:
		metrics.CacheFrames.WithLabelValues("other").Inc()
	}
}

func (a *Aggregator) upsertProfile(evt *types.Event) {
	var meta types.ProfileMetadata
	if err := json.Unmarshal([]byte(evt.Content), &meta); err != nil {
		a.malformed("profile content: " + err.Error())
		return
	}
	if existing, ok := a.profiles[evt.PubKey]; ok && existing.CreatedAt > evt.CreatedAt {
		return
	}
	a.profiles[evt.PubKey] = types.Profile{PubKey: evt.PubKey, CreatedAt: evt.CreatedAt, Metadata: meta}
	metrics.CacheFrames.WithLabelValues("profile").Inc()
}

// addZap merges a receipt; the same zapper paying the same amount to the
// same event is one observation.
func (a *Aggregator) addZap(r types.ZapReceipt) {
	for _, existing := range a.zaps[r.EventID] {
		if existing.ZapperPubKey == r.ZapperPubKey && existing.Amount == r.Amount {
			return
		}
	}
	a.zaps[r.EventID] = append(a.zaps[r.EventID], r)
}

// mergeCount overwrites dst only with a present, nonzero value.
func mergeCount(dst *int64, v gjson.Result) {
	if v.Exists() && v.Int() != 0 {
		*dst = v.Int()
	}
}

func (a *Aggregator) mergeEventStats(evt *types.Event) {
	if !gjson.Valid(evt.Content) {
		a.malformed("event stats content")
		return
	}
	c := gjson.Parse(evt.Content)
	id := c.Get("event_id").String()
	if id == "" {
		a.malformed("event stats without event_id")
		return
	}

	s := a.stats[id]
	s.EventID = id
	mergeCount(&s.Likes, c.Get("likes"))
	mergeCount(&s.Replies, c.Get("replies"))
	mergeCount(&s.Reposts, c.Get("reposts"))
	mergeCount(&s.Zaps, c.Get("zaps"))
	mergeCount(&s.SatsZapped, c.Get("satszapped"))
	mergeCount(&s.Mentions, c.Get("mentions"))
	mergeCount(&s.Score, c.Get("score"))
	a.stats[id] = s
	metrics.CacheFrames.WithLabelValues("event_stats").Inc()
}

func (a *Aggregator) mergeUserStats(evt *types.Event) {
	if !gjson.Valid(evt.Content) {
		a.malformed("user stats content")
		return
	}
	c := gjson.Parse(evt.Content)
	pubkey := c.Get("pubkey").String()
	if pubkey == "" {
		a.malformed("user stats without pubkey")
		return
	}

	s := a.userStats[pubkey]
	s.PubKey = pubkey
	mergeCount(&s.FollowsCount, c.Get("follows_count"))
	mergeCount(&s.FollowersCount, c.Get("followers_count"))
	mergeCount(&s.NoteCount, c.Get("note_count"))
	mergeCount(&s.ReplyCount, c.Get("reply_count"))
	mergeCount(&s.TotalZapCount, c.Get("total_zap_count"))
	mergeCount(&s.TotalSatsZaps, c.Get("total_satszapped"))
	mergeCount(&s.TimeJoined, c.Get("time_joined"))
	a.userStats[pubkey] = s
	metrics.CacheFrames.WithLabelValues("user_stats").Inc()
}

func (a *Aggregator) setCursor(evt *types.Event) {
	if !gjson.Valid(evt.Content) {
		a.malformed("feed range content")
		return
	}
	c := gjson.Parse(evt.Content)
	a.cursor = &types.FeedCursor{
		Since:   c.Get("since").Int(),
		Until:   c.Get("until").Int(),
		OrderBy: c.Get("order_by").String(),
	}
	metrics.CacheFrames.WithLabelValues("feed_range").Inc()
}

// Result returns the aggregate with events newest first.
func (a *Aggregator) Result(partial bool) *types.FeedAggregate {
	events := make([]types.Event, len(a.events))
	copy(events, a.events)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID > events[j].ID
	})

	if partial {
		slog.Debug("cache: returning partial result", "sub_id", util.ShortID(a.subID), "events", len(events))
	}
	return &types.FeedAggregate{
		Events:      events,
		Profiles:    a.profiles,
		Stats:       a.stats,
		ZapReceipts: a.zaps,
		UserStats:   a.userStats,
		Cursor:      a.cursor,
		Partial:     partial,
	}
}
