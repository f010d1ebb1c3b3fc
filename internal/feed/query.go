package feed

import (
	"errors"
	"fmt"
)

// Mode selects the cache query to run.
type Mode string

const (
	ModeFeed        Mode = "feed"
	ModeExplore     Mode = "explore"
	ModeThread      Mode = "thread"
	ModeUserProfile Mode = "user_profile"
	ModeUserZaps    Mode = "user_zaps"
)

// cacheNames maps a mode to the cache service's query name
var cacheNames = map[Mode]string{
	ModeFeed:        "feed",
	ModeExplore:     "explore",
	ModeThread:      "thread_view",
	ModeUserProfile: "user_profile",
	ModeUserZaps:    "user_zaps",
}

var ErrUnknownMode = errors.New("unknown cache query mode")

// Query describes one cache request. Only the fields relevant to Mode are
// sent; zero values are omitted from the payload.
type Query struct {
	Mode Mode

	PubKey     string // feed, user_profile
	UserPubKey string // viewer, for feed and thread
	EventID    string // thread
	Receiver   string // user_zaps

	Timeframe    string // explore: trending, popular, latest...
	Scope        string // explore: global, follows...
	CreatedAfter int64  // explore

	Limit  int
	Since  int64
	Until  int64
	Offset int
}

// payload builds the query name and mode-specific filter.
func (q Query) payload() (string, map[string]any, error) {
	name, ok := cacheNames[q.Mode]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownMode, q.Mode)
	}

	p := make(map[string]any)
	setString := func(key, v string) {
		if v != "" {
			p[key] = v
		}
	}
	setInt := func(key string, v int64) {
		if v > 0 {
			p[key] = v
		}
	}

	switch q.Mode {
	case ModeFeed:
		if q.PubKey == "" {
			return "", nil, errors.New("feed query requires pubkey")
		}
		setString("pubkey", q.PubKey)
		setString("user_pubkey", q.UserPubKey)
		setInt("limit", int64(q.Limit))
		setInt("until", q.Until)
		setInt("since", q.Since)
		setInt("offset", int64(q.Offset))
	case ModeExplore:
		setString("timeframe", q.Timeframe)
		setString("scope", q.Scope)
		setInt("created_after", q.CreatedAfter)
		setInt("limit", int64(q.Limit))
		setInt("until", q.Until)
		setInt("offset", int64(q.Offset))
	case ModeThread:
		if q.EventID == "" {
			return "", nil, errors.New("thread query requires event_id")
		}
		setString("event_id", q.EventID)
		setString("user_pubkey", q.UserPubKey)
		setInt("limit", int64(q.Limit))
	case ModeUserProfile:
		if q.PubKey == "" {
			return "", nil, errors.New("user_profile query requires pubkey")
		}
		setString("pubkey", q.PubKey)
	case ModeUserZaps:
		if q.Receiver == "" {
			return "", nil, errors.New("user_zaps query requires receiver")
		}
		setString("receiver", q.Receiver)
		setInt("limit", int64(q.Limit))
	}
	return name, p, nil
}
