package main

import (
	"context"
	"errors"
	"flag"

	"nostr-core/internal/feed"
	"nostr-core/internal/nips"
)

func (a *app) runFeed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	mode := fs.String("mode", string(feed.ModeFeed), "feed, explore, thread, user_profile or user_zaps")
	pubkey := fs.String("pubkey", "", "Author pubkey, hex or npub (feed, user_profile)")
	user := fs.String("user", "", "Viewer pubkey")
	eventID := fs.String("event", "", "Root event id, hex or note (thread)")
	receiver := fs.String("receiver", "", "Zap receiver (user_zaps)")
	timeframe := fs.String("timeframe", "", "Explore timeframe")
	scope := fs.String("scope", "", "Explore scope")
	createdAfter := fs.Int64("created-after", 0, "Explore lower bound (unix)")
	limit := fs.Int("limit", 20, "Result limit")
	since := fs.Int64("since", 0, "Lower bound (unix)")
	until := fs.Int64("until", 0, "Upper bound (unix)")
	offset := fs.Int("offset", 0, "Pagination offset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, f := range []struct {
		name, hrp string
		value     *string
	}{
		{"pubkey", nips.HRPPubKey, pubkey},
		{"user", nips.HRPPubKey, user},
		{"event", nips.HRPEventID, eventID},
		{"receiver", nips.HRPPubKey, receiver},
	} {
		decoded, err := entityFlag(f.name, *f.value, f.hrp)
		if err != nil {
			return err
		}
		*f.value = decoded
	}

	agg, err := a.ingestor().Query(ctx, feed.Query{
		Mode:         feed.Mode(*mode),
		PubKey:       *pubkey,
		UserPubKey:   *user,
		EventID:      *eventID,
		Receiver:     *receiver,
		Timeframe:    *timeframe,
		Scope:        *scope,
		CreatedAfter: *createdAfter,
		Limit:        *limit,
		Since:        *since,
		Until:        *until,
		Offset:       *offset,
	})
	if err != nil {
		return err
	}
	return printJSON(agg)
}

func (a *app) runProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	raw := fs.String("pubkey", "", "Profile pubkey (hex or npub)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *raw == "" {
		return errors.New("profile: -pubkey required")
	}
	pubkey, err := entityFlag("pubkey", *raw, nips.HRPPubKey)
	if err != nil {
		return err
	}

	agg, err := a.ingestor().Query(ctx, feed.Query{Mode: feed.ModeUserProfile, PubKey: pubkey})
	if err != nil {
		return err
	}
	profile, ok := agg.Profiles[pubkey]
	if !ok {
		return errors.New("profile not found")
	}
	return printJSON(map[string]any{
		"profile": profile,
		"stats":   agg.UserStats[pubkey],
		"partial": agg.Partial,
	})
}
