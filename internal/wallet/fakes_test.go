package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nostr-core/internal/nips"
	"nostr-core/internal/relay"
	"nostr-core/internal/types"
	"nostr-core/internal/util"
)

const testRelay = "wss://relay.wallet.example.com"

// walletReply is what the fake wallet answers with; a nil reply means silence.
type walletReply struct {
	result any
	err    *RPCError
}

// fakeWallet is a Transport that plays both the relay and the wallet
// service behind it.
type fakeWallet struct {
	t      *testing.T
	secret []byte
	pub    string

	mu           sync.Mutex
	subs         map[string]*relay.Subscription
	filters      map[string]types.Filter
	unsubscribed []string
	requests     []*types.Event
	methods      []string
	params       []map[string]any
	rejectWith   string
	forgeFirst   bool

	handle func(method string, params map[string]any) *walletReply
}

func newFakeWallet(t *testing.T, handle func(method string, params map[string]any) *walletReply) *fakeWallet {
	t.Helper()
	secret, err := nips.GeneratePrivateKey()
	require.NoError(t, err)
	pub, err := nips.GetPublicKey(secret)
	require.NoError(t, err)
	return &fakeWallet{
		t:       t,
		secret:  secret,
		pub:     hex.EncodeToString(pub),
		subs:    make(map[string]*relay.Subscription),
		filters: make(map[string]types.Filter),
		handle:  handle,
	}
}

// connection returns a client connection to this wallet.
func (w *fakeWallet) connection(extra string) *Connection {
	w.t.Helper()
	clientSecret, err := nips.GeneratePrivateKey()
	require.NoError(w.t, err)
	conn, err := ParseConnectionURI("nostr+walletconnect://" + w.pub + "?relay=" + testRelay +
		"&secret=" + hex.EncodeToString(clientSecret) + extra)
	require.NoError(w.t, err)
	return conn
}

func (w *fakeWallet) Subscribe(ctx context.Context, relayURL, subID string, filter types.Filter) (*relay.Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sub := relay.NewSubscription(subID, relayURL)
	w.subs[subID] = sub
	w.filters[subID] = filter
	return sub, nil
}

func (w *fakeWallet) Unsubscribe(relayURL string, sub *relay.Subscription) {
	w.mu.Lock()
	delete(w.subs, sub.ID)
	w.unsubscribed = append(w.unsubscribed, sub.ID)
	w.mu.Unlock()
	sub.Close()
}

func (w *fakeWallet) filterFor(requestID string) (types.Filter, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.filters {
		if len(f.ETags) == 1 && f.ETags[0] == requestID {
			return f, true
		}
	}
	return types.Filter{}, false
}

func (w *fakeWallet) openSubs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

func (w *fakeWallet) Publish(ctx context.Context, evt *types.Event, relays []string) []relay.Ack {
	w.mu.Lock()
	w.requests = append(w.requests, evt)
	reject := w.rejectWith
	forge := w.forgeFirst
	w.mu.Unlock()

	if reject != "" {
		return []relay.Ack{{Relay: relays[0], Accepted: false, Message: reject}}
	}

	clientPub, err := hex.DecodeString(evt.PubKey)
	require.NoError(w.t, err)
	nip44 := util.GetTagValue(evt.Tags, "encryption") == string(EncryptionNip44)

	var plaintext string
	if nip44 {
		key, err := nips.GetConversationKey(w.secret, clientPub)
		require.NoError(w.t, err)
		plaintext, err = nips.Nip44Decrypt(evt.Content, key)
		require.NoError(w.t, err)
	} else {
		key, err := nips.GetNip04SharedSecret(w.secret, clientPub)
		require.NoError(w.t, err)
		plaintext, err = nips.Nip04Decrypt(evt.Content, key)
		require.NoError(w.t, err)
	}

	var req request
	require.NoError(w.t, json.Unmarshal([]byte(plaintext), &req))
	w.mu.Lock()
	w.methods = append(w.methods, req.Method)
	w.params = append(w.params, req.Params)
	w.mu.Unlock()

	if reply := w.handle(req.Method, req.Params); reply != nil {
		resp := map[string]any{"result_type": req.Method}
		if reply.err != nil {
			resp["error"] = reply.err
		} else {
			resp["result"] = reply.result
		}
		body, err := json.Marshal(resp)
		require.NoError(w.t, err)

		var content string
		if nip44 {
			key, _ := nips.GetConversationKey(w.secret, clientPub)
			content, err = nips.Nip44Encrypt(string(body), key)
		} else {
			key, _ := nips.GetNip04SharedSecret(w.secret, clientPub)
			content, err = nips.Nip04Encrypt(string(body), key)
		}
		require.NoError(w.t, err)

		replyEvt := &types.Event{
			CreatedAt: time.Now().Unix(),
			Kind:      types.KindWalletReply,
			Tags:      [][]string{{"p", evt.PubKey}, {"e", evt.ID}},
			Content:   content,
		}
		require.NoError(w.t, nips.SignEvent(w.secret, replyEvt))

		var forged *types.Event
		if forge {
			// same tags and author claim, broken signature
			forged = replyEvt.Clone()
			forged.Content = content
			forged.Sig = replyEvt.Sig[:len(replyEvt.Sig)-2] + "00"
			if forged.Sig == replyEvt.Sig {
				forged.Sig = replyEvt.Sig[:len(replyEvt.Sig)-2] + "11"
			}
		}

		go w.deliver(evt.ID, forged, replyEvt)
	}

	return []relay.Ack{{Relay: relays[0], Accepted: true}}
}

// deliver pushes events to the subscriptions filtering on requestID.
func (w *fakeWallet) deliver(requestID string, events ...*types.Event) {
	w.mu.Lock()
	var targets []*relay.Subscription
	for subID, sub := range w.subs {
		for _, id := range w.filters[subID].ETags {
			if id == requestID {
				targets = append(targets, sub)
			}
		}
	}
	w.mu.Unlock()

	for _, evt := range events {
		if evt == nil {
			continue
		}
		for _, sub := range targets {
			sub.Deliver(*evt)
		}
	}
}
