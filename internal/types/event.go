// Package types provides shared type definitions used across internal packages.
package types

import "encoding/json"

// Well-known event kinds referenced by more than one package.
const (
	KindProfile     = 0
	KindNote        = 1
	KindFollowList  = 3
	KindRepost      = 6
	KindReaction    = 7
	KindZapReceipt  = 9735
	KindRelayList   = 10002
	KindWalletReq   = 23194
	KindWalletReply = 23195
)

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Clone returns a deep copy so callers can stamp id/sig without touching the original.
func (e *Event) Clone() *Event {
	c := *e
	c.Tags = make([][]string, len(e.Tags))
	for i, tag := range e.Tags {
		c.Tags[i] = append([]string(nil), tag...)
	}
	return &c
}

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	ETags   []string // #e tag filter (referenced events)
	PTags   []string // #p tag filter (mentions)
	Limit   int
	Since   *int64
	Until   *int64
}

// MarshalJSON emits the wire form, omitting empty fields and using "#e"/"#p" keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.ETags) > 0 {
		m["#e"] = f.ETags
	}
	if len(f.PTags) > 0 {
		m["#p"] = f.PTags
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	return json.Marshal(m)
}

// NostrMessage represents a raw Nostr protocol message
type NostrMessage []interface{}
