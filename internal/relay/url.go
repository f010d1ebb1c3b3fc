package relay

import (
	"net/url"
	"strings"

	"nostr-core/internal/util"
)

// NormalizeURL validates and normalizes a public relay URL.
// Returns empty string if URL is invalid/malformed
func NormalizeURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return ""
	}

	// Quick reject for obviously bad URLs (no colon = no protocol)
	if !strings.Contains(relayURL, "://") {
		return ""
	}
	// Reject double protocols (wss://https://...) and encoded garbage
	if strings.Count(relayURL, "://") > 1 || strings.Contains(relayURL, "%20") || strings.Contains(relayURL, "+") {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	if len(host) < 3 || strings.Contains(host, " ") {
		return ""
	}
	if !strings.Contains(host, ".") && host != "localhost" {
		return ""
	}
	// .onion, .local and .internal are unreachable for public fan-out
	if util.IsInternalHost(host) {
		return ""
	}

	// strip trailing slash, lowercase
	result := scheme + "://" + host
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += strings.TrimRight(parsed.Path, "/")
	}
	return result
}
