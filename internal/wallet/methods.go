package wallet

import (
	"context"
	"encoding/json"
	"fmt"
)

// Info is the result of get_info.
type Info struct {
	Alias         string   `json:"alias"`
	Color         string   `json:"color"`
	PubKey        string   `json:"pubkey"`
	Network       string   `json:"network"`
	BlockHeight   int64    `json:"block_height"`
	BlockHash     string   `json:"block_hash"`
	Methods       []string `json:"methods"`
	Notifications []string `json:"notifications,omitempty"`
}

// Balance is the result of get_balance.
type Balance struct {
	Balance int64 `json:"balance"` // millisatoshis
}

// Sats returns the balance rounded down to whole satoshis.
func (b *Balance) Sats() int64 {
	return MsatsToSats(b.Balance)
}

// Transaction is an invoice or payment as reported by the wallet
type Transaction struct {
	Type            string `json:"type"`                       // "incoming" or "outgoing"
	State           string `json:"state,omitempty"`            // pending, settled, expired, failed
	Invoice         string `json:"invoice,omitempty"`          // BOLT11 invoice
	Description     string `json:"description,omitempty"`      // Payment description
	DescriptionHash string `json:"description_hash,omitempty"` // Hash of description
	Preimage        string `json:"preimage,omitempty"`         // Payment preimage
	PaymentHash     string `json:"payment_hash,omitempty"`     // Payment hash
	Amount          int64  `json:"amount"`                     // Amount in millisatoshis
	FeesPaid        int64  `json:"fees_paid,omitempty"`        // Fees in millisatoshis
	CreatedAt       int64  `json:"created_at"`                 // Unix timestamp
	ExpiresAt       int64  `json:"expires_at,omitempty"`       // Unix timestamp
	SettledAt       int64  `json:"settled_at,omitempty"`       // Unix timestamp when settled
}

// Payment is the result of pay_invoice.
type Payment struct {
	Preimage string `json:"preimage"`
	FeesPaid int64  `json:"fees_paid,omitempty"`
}

// TransactionList is the result of list_transactions.
type TransactionList struct {
	Transactions []Transaction `json:"transactions"`
}

func callTyped[T any](ctx context.Context, c *Client, conn *Connection, method string, params map[string]any) (*T, error) {
	raw, err := c.Call(ctx, conn, method, params)
	if err != nil {
		return nil, err
	}
	var out T
	if len(raw) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse %s result: %w", method, err)
	}
	return &out, nil
}

// GetInfo queries the wallet's node info and supported methods.
func (c *Client) GetInfo(ctx context.Context, conn *Connection) (*Info, error) {
	return callTyped[Info](ctx, c, conn, "get_info", nil)
}

// GetBalance queries the wallet balance (useful for testing connectivity)
func (c *Client) GetBalance(ctx context.Context, conn *Connection) (*Balance, error) {
	return callTyped[Balance](ctx, c, conn, "get_balance", nil)
}

// MakeInvoice asks the wallet for an invoice. amountSats is converted to
// millisatoshis for the wallet.
func (c *Client) MakeInvoice(ctx context.Context, conn *Connection, amountSats int64, description string) (*Transaction, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("invalid amount: %d sats", amountSats)
	}
	params := map[string]any{"amount": SatsToMsats(amountSats)}
	if description != "" {
		params["description"] = description
	}
	return callTyped[Transaction](ctx, c, conn, "make_invoice", params)
}

// PayInvoice pays a BOLT11 invoice.
func (c *Client) PayInvoice(ctx context.Context, conn *Connection, invoice string) (*Payment, error) {
	if invoice == "" {
		return nil, fmt.Errorf("empty invoice")
	}
	return callTyped[Payment](ctx, c, conn, "pay_invoice", map[string]any{"invoice": invoice})
}

// LookupInvoice fetches an invoice by payment hash.
func (c *Client) LookupInvoice(ctx context.Context, conn *Connection, paymentHash string) (*Transaction, error) {
	return callTyped[Transaction](ctx, c, conn, "lookup_invoice", map[string]any{"payment_hash": paymentHash})
}

// ListTransactions retrieves recent transactions; limit <= 0 lets the wallet choose.
func (c *Client) ListTransactions(ctx context.Context, conn *Connection, limit int) (*TransactionList, error) {
	params := map[string]any{}
	if limit > 0 {
		params["limit"] = limit
	}
	return callTyped[TransactionList](ctx, c, conn, "list_transactions", params)
}

// SatsToMsats converts satoshis to millisatoshis
func SatsToMsats(sats int64) int64 {
	return sats * 1000
}

// MsatsToSats converts millisatoshis to satoshis (rounds down)
func MsatsToSats(msats int64) int64 {
	return msats / 1000
}
