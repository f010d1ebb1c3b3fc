package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"nostr-core/internal/signer"
	"nostr-core/internal/types"
)

// KindZapRequest is the NIP-57 zap request kind sent to the LNURL callback.
const KindZapRequest = 9734

// ZapTarget identifies what is being zapped.
type ZapTarget struct {
	RecipientPubKey string
	EventID         string // optional
	Address         string // recipient's lightning address
}

// NewZapRequest builds and signs a kind 9734 zap request.
func NewZapRequest(ctx context.Context, s signer.Signer, target ZapTarget, amountMsats int64, relays []string, comment string) (*types.Event, error) {
	if target.RecipientPubKey == "" {
		return nil, errors.New("zap recipient required")
	}
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	tags := [][]string{
		append([]string{"relays"}, relays...),
		{"amount", strconv.FormatInt(amountMsats, 10)},
		{"p", target.RecipientPubKey},
	}
	if target.EventID != "" {
		tags = append(tags, []string{"e", target.EventID})
	}

	evt := &types.Event{
		PubKey:    pub,
		CreatedAt: time.Now().Unix(),
		Kind:      KindZapRequest,
		Tags:      tags,
		Content:   comment,
	}
	if err := s.SignEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("sign zap request: %w", err)
	}
	return evt, nil
}

// Zap pays a NIP-57 zap: the zap request travels with the invoice request so
// the recipient's service can publish a receipt.
func (c *Client) Zap(ctx context.Context, conn *Connection, r *LNURLResolver, s signer.Signer, target ZapTarget, amountSats int64, relays []string, comment string) (*Payment, error) {
	info, err := r.Resolve(ctx, target.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target.Address, err)
	}
	if !info.AllowsNostr {
		return nil, errors.New("recipient does not accept zaps")
	}

	amountMsats := SatsToMsats(amountSats)
	if err := info.CheckAmount(amountMsats); err != nil {
		return nil, err
	}
	zapReq, err := NewZapRequest(ctx, s, target, amountMsats, relays, comment)
	if err != nil {
		return nil, err
	}

	invoice, err := r.RequestInvoice(ctx, info, InvoiceRequest{AmountMsats: amountMsats, ZapRequest: zapReq})
	if err != nil {
		return nil, err
	}
	return c.PayInvoice(ctx, conn, invoice)
}
