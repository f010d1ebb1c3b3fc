package types

// ZapReceipt is one decoded NIP-57 payment receipt.
type ZapReceipt struct {
	ZapperPubKey string `json:"zapper_pubkey"`
	Amount       int64  `json:"amount"` // satoshis
	EventID      string `json:"event_id"`
	ReceiptID    string `json:"receipt_id"`
	CreatedAt    int64  `json:"created_at"`
}

// EventStats holds the social counters the cache service reports per event.
type EventStats struct {
	EventID    string `json:"event_id"`
	Likes      int64  `json:"likes"`
	Replies    int64  `json:"replies"`
	Reposts    int64  `json:"reposts"`
	Zaps       int64  `json:"zaps"`
	SatsZapped int64  `json:"satszapped"`
	Mentions   int64  `json:"mentions"`
	Score      int64  `json:"score"`
}

// UserStats holds the per-profile counters the cache service reports.
type UserStats struct {
	PubKey         string `json:"pubkey"`
	FollowsCount   int64  `json:"follows_count"`
	FollowersCount int64  `json:"followers_count"`
	NoteCount      int64  `json:"note_count"`
	ReplyCount     int64  `json:"reply_count"`
	TotalZapCount  int64  `json:"total_zap_count"`
	TotalSatsZaps  int64  `json:"total_satszapped"`
	TimeJoined     int64  `json:"time_joined"`
}

// FeedCursor is the pagination range reported alongside a page of results.
type FeedCursor struct {
	Since   int64  `json:"since"`
	Until   int64  `json:"until"`
	OrderBy string `json:"order_by"`
}

// FeedAggregate is the reconciled result of one cache query.
type FeedAggregate struct {
	Events      []Event                 `json:"events"` // newest first
	Profiles    map[string]Profile      `json:"profiles"`
	Stats       map[string]EventStats   `json:"stats"`
	ZapReceipts map[string][]ZapReceipt `json:"zap_receipts"`
	UserStats   map[string]UserStats    `json:"user_stats"`
	Cursor      *FeedCursor             `json:"cursor,omitempty"`
	// Partial is set when the query deadline elapsed before end-of-stream.
	Partial bool `json:"partial"`
}
