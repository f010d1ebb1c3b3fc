package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"nostr-core/internal/cache"
	"nostr-core/internal/types"
	"nostr-core/internal/util"
)

// LNURL-pay handling for Lightning address payments

const (
	LNURLHTTPTimeout = 10 * time.Second
	maxLNURLBody     = 64 << 10
)

// newLNURLHTTPClient builds a dedicated HTTP client for LNURL requests with proper timeouts
func newLNURLHTTPClient() *http.Client {
	return &http.Client{
		Timeout: LNURLHTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:          10,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 5 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}
}

// PayInfo contains the payment endpoint info from the initial LNURL fetch
type PayInfo struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`    // millisats
	MaxSendable    int64  `json:"maxSendable"`    // millisats
	Metadata       string `json:"metadata"`       // JSON stringified metadata
	Tag            string `json:"tag"`            // should be "payRequest"
	AllowsNostr    bool   `json:"allowsNostr"`    // supports NIP-57 zaps
	NostrPubkey    string `json:"nostrPubkey"`    // pubkey for zap receipts
	CommentAllowed int    `json:"commentAllowed"` // max comment length, 0 = no comments
}

type payResponse struct {
	PR string `json:"pr"` // BOLT11 invoice
}

type lnurlError struct {
	Status string `json:"status"` // "ERROR"
	Reason string `json:"reason"`
}

// AmountError is returned when an amount is outside the endpoint's bounds.
// No callback request is made in that case.
type AmountError struct {
	AmountMsats int64
	MinSendable int64
	MaxSendable int64
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("amount %d msats outside allowed range %d-%d msats",
		e.AmountMsats, e.MinSendable, e.MaxSendable)
}

// ErrCommentTooLong is returned when a comment exceeds commentAllowed.
var ErrCommentTooLong = errors.New("comment too long for this endpoint")

// InvoiceRequest carries the optional parts of a callback request.
type InvoiceRequest struct {
	AmountMsats int64
	Comment     string
	ZapRequest  *types.Event // signed kind 9734, NIP-57
	LNURL       string
}

// LNURLResolver resolves Lightning addresses and requests invoices.
type LNURLResolver struct {
	// AllowPrivateHosts permits loopback and private endpoints (tests, local dev).
	AllowPrivateHosts bool

	client  *http.Client
	group   singleflight.Group
	cache   cache.Backend
	infoTTL time.Duration
}

// NewLNURLResolver creates a resolver. httpClient may be nil.
func NewLNURLResolver(httpClient *http.Client) *LNURLResolver {
	if httpClient == nil {
		httpClient = newLNURLHTTPClient()
	}
	return &LNURLResolver{client: httpClient}
}

// WithCache stores resolved pay info in b for ttl.
func (r *LNURLResolver) WithCache(b cache.Backend, ttl time.Duration) *LNURLResolver {
	r.cache = b
	r.infoTTL = ttl
	return r
}

// validateExternalURL validates that a URL is safe to fetch (SSRF prevention)
func (r *LNURLResolver) validateExternalURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsed.Scheme != "https" && !(r.AllowPrivateHosts && parsed.Scheme == "http") {
		return fmt.Errorf("invalid scheme: %s (expected https)", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return errors.New("missing host")
	}
	if !r.AllowPrivateHosts && util.IsPrivateHost(host) {
		return errors.New("internal hosts not allowed")
	}
	return nil
}

// LightningAddressURL maps name@domain to its well-known LNURL-pay endpoint.
func LightningAddressURL(address string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(address), "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", errors.New("invalid lightning address: expected name@domain")
	}
	return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", strings.ToLower(parts[1]), strings.ToLower(parts[0])), nil
}

// Resolve fetches the pay info for a Lightning address. Concurrent
// resolutions of the same address share one request.
func (r *LNURLResolver) Resolve(ctx context.Context, address string) (*PayInfo, error) {
	endpoint, err := LightningAddressURL(address)
	if err != nil {
		return nil, err
	}

	if info := r.cached(ctx, endpoint); info != nil {
		return info, nil
	}

	// The shared fetch outlives any single caller's cancellation; it is
	// bounded by LNURLHTTPTimeout instead.
	fetchCtx := context.WithoutCancel(ctx)
	resCh := r.group.DoChan(endpoint, func() (interface{}, error) {
		return r.fetchPayInfo(fetchCtx, endpoint)
	})
	var res singleflight.Result
	select {
	case res = <-resCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Shared {
		slog.Debug("lnurl: shared resolve", "endpoint", endpoint)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	info := res.Val.(*PayInfo)

	if r.cache != nil {
		if data, err := json.Marshal(info); err == nil {
			if err := r.cache.Set(ctx, "lnurlp:"+endpoint, data, r.infoTTL); err != nil {
				slog.Debug("lnurl: cache write failed", "error", err)
			}
		}
	}
	return info, nil
}

func (r *LNURLResolver) cached(ctx context.Context, endpoint string) *PayInfo {
	if r.cache == nil {
		return nil
	}
	data, found, err := r.cache.Get(ctx, "lnurlp:"+endpoint)
	if err != nil || !found {
		return nil
	}
	var info PayInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}

func (r *LNURLResolver) getJSON(ctx context.Context, rawURL string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, LNURLHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLNURLBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err)
	}

	// LNURL errors may come with any status code
	var lerr lnurlError
	if err := json.Unmarshal(body, &lerr); err == nil && strings.EqualFold(lerr.Status, "ERROR") {
		return fmt.Errorf("lnurl error: %s", lerr.Reason)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lnurl returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse lnurl response: %v", err)
	}
	return nil
}

func (r *LNURLResolver) fetchPayInfo(ctx context.Context, endpoint string) (*PayInfo, error) {
	if err := r.validateExternalURL(endpoint); err != nil {
		return nil, fmt.Errorf("invalid lnurl: %v", err)
	}

	var info PayInfo
	if err := r.getJSON(ctx, endpoint, &info); err != nil {
		return nil, err
	}

	if info.Tag != "payRequest" {
		return nil, fmt.Errorf("unexpected lnurl tag: %s (expected payRequest)", info.Tag)
	}
	if info.Callback == "" {
		return nil, errors.New("lnurl missing callback")
	}
	if info.MinSendable <= 0 || info.MaxSendable <= 0 || info.MinSendable > info.MaxSendable {
		return nil, errors.New("lnurl missing amount limits")
	}
	return &info, nil
}

// CheckAmount validates amountMsats against the endpoint bounds.
func (info *PayInfo) CheckAmount(amountMsats int64) error {
	if amountMsats < info.MinSendable || amountMsats > info.MaxSendable {
		return &AmountError{AmountMsats: amountMsats, MinSendable: info.MinSendable, MaxSendable: info.MaxSendable}
	}
	return nil
}

// RequestInvoice requests a BOLT11 invoice from the LNURL callback. Amount
// and comment are validated before anything is sent.
func (r *LNURLResolver) RequestInvoice(ctx context.Context, info *PayInfo, req InvoiceRequest) (string, error) {
	if err := info.CheckAmount(req.AmountMsats); err != nil {
		return "", err
	}
	if req.Comment != "" && len([]rune(req.Comment)) > info.CommentAllowed {
		return "", fmt.Errorf("%w: %d > %d", ErrCommentTooLong, len([]rune(req.Comment)), info.CommentAllowed)
	}
	if err := r.validateExternalURL(info.Callback); err != nil {
		return "", fmt.Errorf("invalid callback URL: %v", err)
	}

	callbackURL, err := url.Parse(info.Callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %v", err)
	}
	query := callbackURL.Query()
	query.Set("amount", strconv.FormatInt(req.AmountMsats, 10))
	if req.Comment != "" {
		query.Set("comment", req.Comment)
	}
	if req.ZapRequest != nil {
		if !info.AllowsNostr {
			return "", errors.New("endpoint does not accept zaps")
		}
		zapJSON, err := json.Marshal(req.ZapRequest)
		if err != nil {
			return "", fmt.Errorf("marshal zap request: %w", err)
		}
		query.Set("nostr", string(zapJSON))
		if req.LNURL != "" {
			query.Set("lnurl", req.LNURL)
		}
	}
	callbackURL.RawQuery = query.Encode()

	var payResp payResponse
	if err := r.getJSON(ctx, callbackURL.String(), &payResp); err != nil {
		return "", err
	}
	if payResp.PR == "" {
		return "", errors.New("callback returned empty invoice")
	}
	return payResp.PR, nil
}

// PayLightningAddress resolves address, fetches an invoice for amountSats
// and pays it through the wallet.
func (c *Client) PayLightningAddress(ctx context.Context, conn *Connection, r *LNURLResolver, address string, amountSats int64, comment string) (*Payment, error) {
	info, err := r.Resolve(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}
	invoice, err := r.RequestInvoice(ctx, info, InvoiceRequest{AmountMsats: SatsToMsats(amountSats), Comment: comment})
	if err != nil {
		return nil, err
	}
	return c.PayInvoice(ctx, conn, invoice)
}
