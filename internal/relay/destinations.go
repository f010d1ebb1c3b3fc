package relay

import (
	"log/slog"
	"strings"

	"nostr-core/internal/policy"
)

// DestinationSet is the ordered set of relays one message goes to. The
// private relay is always present and always first.
type DestinationSet struct {
	Private string
	Public  []string
}

// Destinations builds the set for a routing decision on a message of the
// given kind and tags. Public relays are added only when the decision is
// public and the classifier itself finds the message shareable, so a
// hand-built Decision cannot route a never-shareable kind outward. Public
// relays are normalized; malformed ones are dropped.
func (r *Router) Destinations(kind int, tags [][]string, d policy.Decision) DestinationSet {
	set := DestinationSet{Private: r.privateRelay}
	if !d.Public || !d.EverShareable || !r.classifier.EverShareable(kind, tags) {
		return set
	}

	seen := map[string]bool{normalizeRelay(r.privateRelay): true}
	for _, relayURL := range r.publicRelays {
		key := NormalizeURL(relayURL)
		if key == "" {
			if relayURL != "" {
				slog.Debug("relay: dropping malformed public relay", "relay", relayURL)
			}
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		set.Public = append(set.Public, key)
	}
	return set
}

// Relays returns the flattened relay list, private relay first.
func (s DestinationSet) Relays() []string {
	out := make([]string, 0, 1+len(s.Public))
	out = append(out, s.Private)
	return append(out, s.Public...)
}

// IncludesPublic reports whether any public relay is in the set.
func (s DestinationSet) IncludesPublic() bool {
	return len(s.Public) > 0
}

// Scope names the audience of relayURL within the set, for metrics.
func (s DestinationSet) Scope(relayURL string) string {
	if relayURL == s.Private {
		return "private"
	}
	return "public"
}

// normalizeRelay keys the private relay, which may live on a host
// NormalizeURL rejects.
func normalizeRelay(relayURL string) string {
	if n := NormalizeURL(relayURL); n != "" {
		return n
	}
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(relayURL)), "/")
}
