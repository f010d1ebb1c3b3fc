package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"nostr-core/internal/relay"
)

func (a *app) runClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	kind := fs.Int("kind", 1, "Event kind")
	public := fs.Bool("public", false, "Caller intends to share publicly")
	var tags tagFlag
	fs.Var(&tags, "tag", "Tag as name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := a.classifier()
	if err != nil {
		return err
	}
	decision := c.Decide(*kind, tags, *public)
	_, dest := relay.NewRouter(c, a.relayPool(), a.cfg.PrivateRelay, a.cfg.PublicRelays).Route(*kind, tags, *public)

	return printJSON(map[string]any{
		"kind":         *kind,
		"result":       decision.Result,
		"public":       decision.Public,
		"violation":    decision.Violation,
		"destinations": dest.Relays(),
	})
}

func (a *app) runPublish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	kind := fs.Int("kind", 1, "Event kind")
	content := fs.String("content", "", "Event content")
	data := fs.String("data", "", "JSON record to store as content (encrypted when the record stays private)")
	public := fs.Bool("public", false, "Share publicly when policy allows")
	var tags tagFlag
	fs.Var(&tags, "tag", "Tag as name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *content != "" && *data != "" {
		return errors.New("use either -content or -data")
	}

	router, err := a.router()
	if err != nil {
		return err
	}

	draft := relay.Draft{Kind: *kind, Tags: tags, Content: *content}
	if *data != "" {
		var record any
		if err := json.Unmarshal([]byte(*data), &record); err != nil {
			return fmt.Errorf("-data is not JSON: %w", err)
		}
		draft.Data = record
	}

	report, err := router.PublishDraft(ctx, draft, *public)
	if report != nil {
		acks := make([]map[string]any, 0, len(report.Acks))
		for _, ack := range report.Acks {
			entry := map[string]any{"relay": ack.Relay, "accepted": ack.Accepted, "message": ack.Message}
			if ack.Err != nil {
				entry["error"] = ack.Err.Error()
			}
			acks = append(acks, entry)
		}
		if perr := printJSON(map[string]any{
			"event_id":  report.EventID,
			"public":    report.Decision.Public,
			"violation": report.Decision.Violation,
			"accepted":  report.Accepted(),
			"acks":      acks,
		}); perr != nil {
			return perr
		}
	}
	return err
}
