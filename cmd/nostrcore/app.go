package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"nostr-core/internal/cache"
	"nostr-core/internal/config"
	"nostr-core/internal/feed"
	"nostr-core/internal/nips"
	"nostr-core/internal/policy"
	"nostr-core/internal/relay"
	"nostr-core/internal/signer"
	"nostr-core/internal/storage"
	"nostr-core/internal/wallet"
)

// app builds collaborators on first use so each command only opens what it needs.
type app struct {
	cfg *config.Config

	poolOnce sync.Once
	pool     *relay.Pool

	backendOnce sync.Once
	backend     cache.Backend
	backendErr  error

	closeOnce sync.Once
}

func newApp(cfg *config.Config) *app {
	return &app{cfg: cfg}
}

func (a *app) classifier() (*policy.Classifier, error) {
	tables, err := policy.LoadTables(a.cfg.PolicyConfig)
	if err != nil {
		return nil, err
	}
	return policy.New(tables), nil
}

func (a *app) relayPool() *relay.Pool {
	a.poolOnce.Do(func() {
		a.pool = relay.NewPool(relay.Options{AllowPrivateHosts: a.cfg.AllowPrivateHosts})
	})
	return a.pool
}

func (a *app) signer() (*signer.LocalSigner, error) {
	if a.cfg.NostrSecret == "" {
		return nil, errors.New("NOSTR_SECRET is required for this command")
	}
	secret, err := nips.DecodeEntity(a.cfg.NostrSecret, nips.HRPSecret)
	if err != nil {
		return nil, fmt.Errorf("NOSTR_SECRET: %w", err)
	}
	return signer.NewLocalSignerHex(secret)
}

// entityFlag accepts hex or the matching bare NIP-19 form; empty stays empty.
func entityFlag(name, value, hrp string) (string, error) {
	if value == "" {
		return "", nil
	}
	decoded, err := nips.DecodeEntity(value, hrp)
	if err != nil {
		return "", fmt.Errorf("-%s: %w", name, err)
	}
	return decoded, nil
}

func (a *app) cacheBackend() (cache.Backend, error) {
	a.backendOnce.Do(func() {
		a.backend, a.backendErr = cache.Open(a.cfg.RedisURL, a.cfg.RedisPrefix)
	})
	return a.backend, a.backendErr
}

func (a *app) router() (*relay.Router, error) {
	classifier, err := a.classifier()
	if err != nil {
		return nil, err
	}
	s, err := a.signer()
	if err != nil {
		return nil, err
	}
	return relay.NewRouter(classifier, a.relayPool(), a.cfg.PrivateRelay, a.cfg.PublicRelays).
		WithSigner(s, storage.NewGateway(s)), nil
}

func (a *app) walletClient() *wallet.Client {
	return wallet.NewClient(a.relayPool(), wallet.WithTimeout(a.cfg.WalletTimeout))
}

func (a *app) lnurlResolver() *wallet.LNURLResolver {
	r := wallet.NewLNURLResolver(nil)
	r.AllowPrivateHosts = a.cfg.AllowPrivateHosts
	if b, err := a.cacheBackend(); err == nil {
		r.WithCache(b, a.cfg.Cache.LNURLPayInfoTTL)
	}
	return r
}

func (a *app) walletStore(s signer.Signer) (*wallet.Store, error) {
	b, err := a.cacheBackend()
	if err != nil {
		return nil, err
	}
	return wallet.NewStore(b, storage.NewGateway(s), a.cfg.Cache.WalletConnectionTTL), nil
}

func (a *app) ingestor() *feed.Ingestor {
	return feed.NewIngestor(a.cfg.CacheURL, feed.WSDialer{}, feed.WithTimeout(a.cfg.CacheTimeout))
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.pool != nil {
			a.pool.Close()
		}
		if a.backend != nil {
			if err := a.backend.Close(); err != nil {
				slog.Debug("cache backend close failed", "error", err)
			}
		}
	})
}
