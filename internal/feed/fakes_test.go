package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tidwall/gjson"

	"nostr-core/internal/types"
)

// fakeChannel answers the REQ frame with a scripted reply stream, then
// stays silent until the caller gives up.
type fakeChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool

	frames chan []byte
	script func(subID string) []string
}

func newFakeChannel(script func(subID string) []string) *fakeChannel {
	return &fakeChannel{frames: make(chan []byte, 256), script: script}
}

func (c *fakeChannel) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	c.sent = append(c.sent, frame)
	c.mu.Unlock()

	if gjson.GetBytes(frame, "0").String() == "REQ" && c.script != nil {
		for _, f := range c.script(gjson.GetBytes(frame, "1").String()) {
			c.frames <- []byte(f)
		}
	}
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) sentFrames() []gjson.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]gjson.Result, len(c.sent))
	for i, f := range c.sent {
		out[i] = gjson.ParseBytes(f)
	}
	return out
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	ch  *fakeChannel
	err error
	url string
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Channel, error) {
	d.url = url
	if d.err != nil {
		return nil, d.err
	}
	return d.ch, nil
}

func eventFrame(subID string, evt types.Event) string {
	b, _ := json.Marshal([]any{"EVENT", subID, evt})
	return string(b)
}

func eoseFrame(subID string) string {
	return `["EOSE","` + subID + `"]`
}

func note(id string, createdAt int64) types.Event {
	return types.Event{ID: id, PubKey: "author", CreatedAt: createdAt, Kind: types.KindNote, Tags: [][]string{}, Content: "hello " + id}
}

func profile(pubkey, name string, createdAt int64) types.Event {
	content, _ := json.Marshal(types.ProfileMetadata{Name: name})
	return types.Event{ID: "p-" + name, PubKey: pubkey, CreatedAt: createdAt, Kind: types.KindProfile, Tags: [][]string{}, Content: string(content)}
}

func statsEvent(kind int, content string) types.Event {
	return types.Event{ID: "s", Kind: kind, Tags: [][]string{}, Content: content}
}

func zapReceipt(id, eventID, zapper, bolt11 string) types.Event {
	tags := [][]string{{"e", eventID}, {"p", "recipient"}}
	if zapper != "" {
		tags = append(tags, []string{"P", zapper})
	}
	if bolt11 != "" {
		tags = append(tags, []string{"bolt11", bolt11})
	}
	return types.Event{ID: id, PubKey: "lnurl-service", CreatedAt: 100, Kind: types.KindZapReceipt, Tags: tags}
}
