package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"nostr-core/internal/nips"
	"nostr-core/internal/wallet"
)

func (a *app) runWallet(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("wallet: missing subcommand")
	}
	sub, args := args[0], args[1:]

	fs := flag.NewFlagSet("wallet "+sub, flag.ContinueOnError)
	nwc := fs.String("nwc", "", "Wallet connection URI (defaults to NWC_URI, then the saved connection)")
	amount := fs.Int64("amount", 0, "Amount in sats")
	desc := fs.String("desc", "", "Invoice description")
	invoice := fs.String("invoice", "", "BOLT11 invoice to pay")
	address := fs.String("address", "", "Lightning address (name@domain)")
	comment := fs.String("comment", "", "Comment for the recipient")
	hash := fs.String("hash", "", "Payment hash")
	limit := fs.Int("limit", 20, "Number of transactions")
	recipient := fs.String("pubkey", "", "Zap recipient pubkey (hex or npub)")
	eventID := fs.String("event", "", "Zapped event id (hex or note)")
	out := fs.String("out", "invoice.png", "QR code output file")
	size := fs.Int("size", 256, "QR code size in pixels")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "connect":
		return a.walletConnect(ctx, *nwc)
	case "disconnect":
		return a.walletDisconnect(ctx)
	case "qr":
		return writeQR(*invoice, *size, *out)
	}

	conn, err := a.walletConnection(ctx, *nwc)
	if err != nil {
		return err
	}
	client := a.walletClient()

	switch sub {
	case "info":
		info, err := client.GetInfo(ctx, conn)
		if err != nil {
			return err
		}
		return printJSON(info)
	case "balance":
		bal, err := client.GetBalance(ctx, conn)
		if err != nil {
			return err
		}
		return printJSON(map[string]int64{"msats": bal.Balance, "sats": bal.Sats()})
	case "invoice":
		tx, err := client.MakeInvoice(ctx, conn, *amount, *desc)
		if err != nil {
			return err
		}
		return printJSON(tx)
	case "pay":
		var pay *wallet.Payment
		switch {
		case *invoice != "":
			pay, err = client.PayInvoice(ctx, conn, *invoice)
		case *address != "":
			pay, err = client.PayLightningAddress(ctx, conn, a.lnurlResolver(), *address, *amount, *comment)
		default:
			return errors.New("wallet pay: -invoice or -address required")
		}
		if err != nil {
			return err
		}
		return printJSON(pay)
	case "lookup":
		tx, err := client.LookupInvoice(ctx, conn, *hash)
		if err != nil {
			return err
		}
		return printJSON(tx)
	case "transactions":
		list, err := client.ListTransactions(ctx, conn, *limit)
		if err != nil {
			return err
		}
		return printJSON(list)
	case "zap":
		s, err := a.signer()
		if err != nil {
			return err
		}
		recipientHex, err := entityFlag("pubkey", *recipient, nips.HRPPubKey)
		if err != nil {
			return err
		}
		eventHex, err := entityFlag("event", *eventID, nips.HRPEventID)
		if err != nil {
			return err
		}
		target := wallet.ZapTarget{RecipientPubKey: recipientHex, EventID: eventHex, Address: *address}
		relays := append([]string{a.cfg.PrivateRelay}, a.cfg.PublicRelays...)
		pay, err := client.Zap(ctx, conn, a.lnurlResolver(), s, target, *amount, relays, *comment)
		if err != nil {
			return err
		}
		return printJSON(pay)
	default:
		return fmt.Errorf("wallet: unknown subcommand %q", sub)
	}
}

// walletConnection resolves the connection from the flag, the environment
// or the store, in that order.
func (a *app) walletConnection(ctx context.Context, uri string) (*wallet.Connection, error) {
	if uri == "" {
		uri = a.cfg.NWCURI
	}
	if uri != "" {
		return wallet.ParseConnectionURI(uri)
	}

	s, err := a.signer()
	if err != nil {
		return nil, errors.New("no wallet connection: pass -nwc, set NWC_URI or run wallet connect")
	}
	store, err := a.walletStore(s)
	if err != nil {
		return nil, err
	}
	user, err := s.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx, user)
}

func (a *app) walletConnect(ctx context.Context, uri string) error {
	if uri == "" {
		uri = a.cfg.NWCURI
	}
	conn, err := wallet.ParseConnectionURI(uri)
	if err != nil {
		return err
	}
	s, err := a.signer()
	if err != nil {
		return err
	}
	store, err := a.walletStore(s)
	if err != nil {
		return err
	}
	user, err := s.PublicKey(ctx)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, user, conn); err != nil {
		return err
	}
	npub, err := nips.EncodeEntity(nips.HRPPubKey, user)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"user": npub, "wallet": conn.WalletPubKey, "relay": conn.RelayURL, "lud16": conn.LUD16})
}

func (a *app) walletDisconnect(ctx context.Context) error {
	s, err := a.signer()
	if err != nil {
		return err
	}
	store, err := a.walletStore(s)
	if err != nil {
		return err
	}
	user, err := s.PublicKey(ctx)
	if err != nil {
		return err
	}
	return store.Delete(ctx, user)
}

func writeQR(invoice string, size int, path string) error {
	if invoice == "" {
		return errors.New("wallet qr: -invoice required")
	}
	png, err := wallet.InvoiceQR(invoice, size)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return err
	}
	return printJSON(map[string]string{"file": path})
}
