package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-core/internal/nips"
	"nostr-core/internal/types"
	"nostr-core/internal/util"
)

func balanceWallet(method string, params map[string]any) *walletReply {
	switch method {
	case "get_balance":
		return &walletReply{result: map[string]any{"balance": 21000}}
	case "get_info":
		return &walletReply{result: map[string]any{"alias": "test-node", "network": "regtest", "methods": []string{"get_balance", "pay_invoice"}}}
	case "make_invoice":
		return &walletReply{result: map[string]any{"type": "incoming", "invoice": "lnbcrt210n1test", "amount": params["amount"], "payment_hash": "ab12"}}
	case "lookup_invoice":
		return &walletReply{result: map[string]any{"type": "incoming", "payment_hash": params["payment_hash"], "state": "settled"}}
	case "pay_invoice":
		return &walletReply{result: map[string]any{"preimage": "00ff"}}
	case "list_transactions":
		return &walletReply{result: map[string]any{"transactions": []map[string]any{{"type": "outgoing", "amount": 1000}}}}
	}
	return &walletReply{err: &RPCError{Code: CodeNotImplemented, Message: method + " not supported"}}
}

func TestDefaultTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, DefaultTimeout)
}

func TestGetBalance(t *testing.T) {
	w := newFakeWallet(t, balanceWallet)
	conn := w.connection("")
	c := NewClient(w)

	bal, err := c.GetBalance(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, int64(21000), bal.Balance)
	assert.Equal(t, int64(21), bal.Sats())

	require.Len(t, w.requests, 1)
	req := w.requests[0]
	assert.Equal(t, types.KindWalletReq, req.Kind)
	assert.Equal(t, conn.ClientPubKey(), req.PubKey)
	assert.Equal(t, w.pub, util.GetTagValue(req.Tags, "p"))
	assert.False(t, util.HasTag(req.Tags, "encryption"))
	assert.True(t, nips.LooksLikeNip04(req.Content))
	require.NoError(t, nips.VerifyEvent(req))

	filter, ok := w.filterFor(req.ID)
	require.True(t, ok, "reply subscription must reference the request id")
	assert.Equal(t, []int{types.KindWalletReply}, filter.Kinds)
	assert.Equal(t, []string{w.pub}, filter.Authors)

	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, w.openSubs())
}

func TestNip44Connection(t *testing.T) {
	w := newFakeWallet(t, balanceWallet)
	conn := w.connection("&encryption=nip44_v2")
	c := NewClient(w)

	info, err := c.GetInfo(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "test-node", info.Alias)
	assert.Equal(t, []string{"get_balance", "pay_invoice"}, info.Methods)

	req := w.requests[0]
	assert.Equal(t, "nip44_v2", util.GetTagValue(req.Tags, "encryption"))
	assert.True(t, nips.LooksLikeNip44(req.Content))
}

func TestMakeInvoiceSendsMillisats(t *testing.T) {
	w := newFakeWallet(t, balanceWallet)
	c := NewClient(w)

	inv, err := c.MakeInvoice(context.Background(), w.connection(""), 21, "coffee")
	require.NoError(t, err)
	assert.Equal(t, int64(21000), inv.Amount)
	assert.Equal(t, "lnbcrt210n1test", inv.Invoice)

	require.Len(t, w.params, 1)
	assert.Equal(t, float64(21000), w.params[0]["amount"])
	assert.Equal(t, "coffee", w.params[0]["description"])
	assert.Equal(t, []string{"make_invoice"}, w.methods)
}

func TestTypedOperations(t *testing.T) {
	w := newFakeWallet(t, balanceWallet)
	conn := w.connection("")
	c := NewClient(w)
	ctx := context.Background()

	pay, err := c.PayInvoice(ctx, conn, "lnbc10u1pexample")
	require.NoError(t, err)
	assert.Equal(t, "00ff", pay.Preimage)

	tx, err := c.LookupInvoice(ctx, conn, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", tx.PaymentHash)
	assert.Equal(t, "settled", tx.State)

	list, err := c.ListTransactions(ctx, conn, 10)
	require.NoError(t, err)
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, float64(10), w.params[2]["limit"])

	_, err = c.PayInvoice(ctx, conn, "")
	assert.Error(t, err)
	_, err = c.MakeInvoice(ctx, conn, 0, "")
	assert.Error(t, err)
}

func TestWalletErrorRejects(t *testing.T) {
	w := newFakeWallet(t, func(method string, params map[string]any) *walletReply {
		return &walletReply{err: &RPCError{Code: CodeInsufficientBalance, Message: "not enough sats"}}
	})
	c := NewClient(w)

	_, err := c.PayInvoice(context.Background(), w.connection(""), "lnbc1")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInsufficientBalance, rpcErr.Code)
	assert.Equal(t, "not enough sats", rpcErr.Message)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 0, w.openSubs())
}

func TestSilentWalletTimesOut(t *testing.T) {
	w := newFakeWallet(t, func(string, map[string]any) *walletReply { return nil })
	timeout := 200 * time.Millisecond
	c := NewClient(w, WithTimeout(timeout))

	start := time.Now()
	_, err := c.GetBalance(context.Background(), w.connection(""))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, w.openSubs())
	assert.Len(t, w.unsubscribed, 1)
}

func TestForgedReplyIsIgnored(t *testing.T) {
	w := newFakeWallet(t, balanceWallet)
	w.forgeFirst = true
	c := NewClient(w, WithTimeout(2*time.Second))

	bal, err := c.GetBalance(context.Background(), w.connection(""))
	require.NoError(t, err)
	assert.Equal(t, int64(21000), bal.Balance)
}

func TestRelayRejectionFailsFast(t *testing.T) {
	w := newFakeWallet(t, balanceWallet)
	w.rejectWith = "blocked: rate limited"
	c := NewClient(w)

	start := time.Now()
	_, err := c.GetBalance(context.Background(), w.connection(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked: rate limited")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, w.openSubs())
}

func TestContextCancellationReleasesExchange(t *testing.T) {
	w := newFakeWallet(t, func(string, map[string]any) *walletReply { return nil })
	c := NewClient(w)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetBalance(ctx, w.connection(""))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, w.openSubs())
}

func TestConcurrentCallsAreIsolated(t *testing.T) {
	w := newFakeWallet(t, balanceWallet)
	conn := w.connection("")
	c := NewClient(w, WithRateLimit(0, 0))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.GetBalance(context.Background(), conn)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, c.Pending())
}
