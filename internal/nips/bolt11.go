package nips

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ln + human readable network prefix, amount, optional multiplier, then the bech32 separator
	invoiceAmountPattern = regexp.MustCompile(`^ln[a-z]+?(\d+)([munp])?1[02-9ac-hj-np-z]`)
	bareAmountPattern    = regexp.MustCompile(`^(\d+)([munp])?$`)
)

// DecodeAmount returns the amount embedded in a BOLT11 invoice, in satoshis.
// A bare amount such as "2500u" is accepted too. It returns 0 when no amount
// can be read, in which case callers fall back to an explicit amount field.
func DecodeAmount(invoice string) int64 {
	s := strings.ToLower(strings.TrimSpace(invoice))
	s = strings.TrimPrefix(s, "lightning:")

	m := invoiceAmountPattern.FindStringSubmatch(s)
	if m == nil {
		m = bareAmountPattern.FindStringSubmatch(s)
	}
	if m == nil {
		return 0
	}

	magnitude, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}

	var sats float64
	switch m[2] {
	case "":
		sats = float64(magnitude) * 100_000_000
	case "m":
		sats = float64(magnitude) * 100_000
	case "u":
		sats = float64(magnitude) * 100
	case "n":
		sats = math.Round(float64(magnitude) * 0.1)
	case "p":
		sats = math.Round(float64(magnitude) * 0.0001)
	}

	if sats >= math.MaxInt64 {
		return 0
	}
	return int64(sats)
}
