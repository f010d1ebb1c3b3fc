package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-core/internal/nips"
	"nostr-core/internal/policy"
	"nostr-core/internal/signer"
	"nostr-core/internal/storage"
	"nostr-core/internal/types"
)

const privateRelay = "wss://members.example.com"

var publicRelays = []string{"wss://relay.damus.io", "wss://nos.lol"}

// recordingPublisher accepts everything and remembers where each event went.
type recordingPublisher struct {
	mu     sync.Mutex
	calls  [][]string
	events []*types.Event
	reject bool
}

func (p *recordingPublisher) Publish(ctx context.Context, evt *types.Event, relays []string) []Ack {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]string(nil), relays...))
	p.events = append(p.events, evt)
	acks := make([]Ack, len(relays))
	for i, r := range relays {
		if p.reject {
			acks[i] = Ack{Relay: r, Err: errors.New("connection refused")}
		} else {
			acks[i] = Ack{Relay: r, Accepted: true}
		}
	}
	return acks
}

func (p *recordingPublisher) last() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

func newTestRouter(t *testing.T) (*Router, *recordingPublisher, *signer.LocalSigner) {
	t.Helper()
	s, err := signer.GenerateLocalSigner()
	require.NoError(t, err)
	pub := &recordingPublisher{}
	r := NewRouter(policy.New(policy.DefaultTables()), pub, privateRelay, publicRelays).
		WithSigner(s, storage.NewGateway(s))
	return r, pub, s
}

func TestNeverShareableKindsNeverReachPublicRelays(t *testing.T) {
	r, pub, _ := newTestRouter(t)
	ctx := context.Background()

	tagSets := [][][]string{
		nil,
		{{"t", "nostr"}},
		{{"t", "journal"}},
		{{"h", "circle-1"}},
		{{"d", "private-notes"}},
		{{"p", "abcd"}, {"e", "ef01"}, {"t", "public"}},
	}

	for _, kind := range policy.DefaultTables().NeverShareableKinds {
		for _, tags := range tagSets {
			for _, intended := range []bool{true, false} {
				evt := &types.Event{Kind: kind, Tags: tags, Content: "x", ID: "id", Sig: "sig"}
				report, err := r.Publish(ctx, evt, intended)
				require.NoError(t, err)

				assert.Equal(t, []string{privateRelay}, pub.last(), "kind %d tags %v intended %v", kind, tags, intended)
				assert.False(t, report.Destinations.IncludesPublic())
				if intended {
					assert.Equal(t, policy.ViolationNeverShareable, report.Decision.Violation)
				}
			}
		}
	}
}

func TestPublicNoteFansOut(t *testing.T) {
	r, pub, _ := newTestRouter(t)

	evt := &types.Event{Kind: types.KindNote, Content: "hello", ID: "id", Sig: "sig"}
	report, err := r.Publish(context.Background(), evt, false)
	require.NoError(t, err)

	assert.Equal(t, append([]string{privateRelay}, publicRelays...), pub.last())
	assert.Equal(t, 3, report.Accepted())
}

func TestPrivateTopicDowngradesIntendedPublic(t *testing.T) {
	r, pub, _ := newTestRouter(t)

	evt := &types.Event{Kind: types.KindNote, Tags: [][]string{{"t", "Therapy"}}, ID: "id", Sig: "sig"}
	report, err := r.Publish(context.Background(), evt, true)
	require.NoError(t, err)

	assert.True(t, report.Decision.EverShareable)
	assert.False(t, report.Decision.ShouldAutoPublishPublic)
	assert.Equal(t, policy.ViolationPrivateMarker, report.Decision.Violation)
	assert.Equal(t, []string{privateRelay}, pub.last())
}

func TestUnsignedEventIsSignedAsCopy(t *testing.T) {
	r, pub, s := newTestRouter(t)

	evt := &types.Event{Kind: types.KindNote, Tags: [][]string{}, Content: "hi", CreatedAt: 1700000000}
	report, err := r.Publish(context.Background(), evt, false)
	require.NoError(t, err)

	assert.Empty(t, evt.Sig, "caller's event must not be modified")
	sent := pub.events[0]
	self, _ := s.PublicKey(context.Background())
	assert.Equal(t, report.EventID, sent.ID)
	assert.Equal(t, self, sent.PubKey)
	require.NoError(t, nips.VerifyEvent(sent))
}

func TestPublishDraftEncryptsPrivateRecords(t *testing.T) {
	r, pub, s := newTestRouter(t)
	ctx := context.Background()
	record := map[string]any{"mood": 4.0, "note": "rough day"}

	_, err := r.PublishDraft(ctx, Draft{Kind: 30078, Tags: [][]string{{"d", "journal-2024-05-01"}}, Data: record}, true)
	require.NoError(t, err)

	sent := pub.events[0]
	assert.Equal(t, []string{privateRelay}, pub.last())
	assert.True(t, nips.LooksLikeNip44(sent.Content))

	var got map[string]any
	require.NoError(t, storage.NewGateway(s).Decrypt(ctx, sent.Content, &got))
	assert.Equal(t, record, got)
}

func TestPublishDraftSharedRecordStaysPlain(t *testing.T) {
	r, pub, _ := newTestRouter(t)

	_, err := r.PublishDraft(context.Background(), Draft{Kind: 30078, Tags: [][]string{{"d", "recipes"}}, Data: map[string]int{"servings": 2}}, true)
	require.NoError(t, err)

	assert.Equal(t, append([]string{privateRelay}, publicRelays...), pub.last())
	assert.JSONEq(t, `{"servings":2}`, pub.events[0].Content)
}

func TestPublishReportsTotalDeliveryFailure(t *testing.T) {
	r, pub, _ := newTestRouter(t)
	pub.reject = true

	report, err := r.Publish(context.Background(), &types.Event{Kind: 1, ID: "id", Sig: "sig"}, false)
	assert.ErrorIs(t, err, ErrNotDelivered)
	require.NotNil(t, report)
	assert.Len(t, report.Acks, 3)
}

func TestDestinationsDeduplicates(t *testing.T) {
	r := NewRouter(policy.New(policy.DefaultTables()), &recordingPublisher{}, privateRelay,
		[]string{"wss://nos.lol", privateRelay + "/", "", "wss://NOS.lol/", "wss://relay.damus.io"})
	d := policy.Decision{Result: policy.Result{EverShareable: true}, Public: true}
	set := r.Destinations(1, nil, d)

	assert.Equal(t, []string{privateRelay, "wss://nos.lol", "wss://relay.damus.io"}, set.Relays())
	assert.Equal(t, "private", set.Scope(privateRelay))
	assert.Equal(t, "public", set.Scope("wss://nos.lol"))
}

func TestDestinationsRejectsForgedDecision(t *testing.T) {
	r, _, _ := newTestRouter(t)

	set := r.Destinations(1, nil, policy.Decision{Public: true})
	assert.Equal(t, []string{privateRelay}, set.Relays(), "decision without EverShareable")

	forged := policy.Decision{Result: policy.Result{EverShareable: true, ShouldAutoPublishPublic: true}, Public: true}
	for _, kind := range []int{4, 13, 14, 1059} {
		set := r.Destinations(kind, nil, forged)
		assert.Equal(t, []string{privateRelay}, set.Relays(), "kind %d", kind)
	}

	groupTags := [][]string{{"h", "members"}}
	set = r.Destinations(1, groupTags, forged)
	assert.Equal(t, []string{privateRelay}, set.Relays(), "restricted group")
}
