package feed

import (
	"strconv"

	"github.com/tidwall/gjson"

	"nostr-core/internal/nips"
	"nostr-core/internal/types"
	"nostr-core/internal/util"
)

// DecodeZapReceipt extracts the payment from a kind 9735 receipt. It
// reports false when the receipt names no zapped event or no zapper.
func DecodeZapReceipt(evt *types.Event) (types.ZapReceipt, bool) {
	if evt.Kind != types.KindZapReceipt {
		return types.ZapReceipt{}, false
	}
	eventID := util.GetTagValue(evt.Tags, "e")
	if eventID == "" {
		return types.ZapReceipt{}, false
	}

	// embedded kind 9734 request
	var zapReq gjson.Result
	if desc := util.GetTagValue(evt.Tags, "description"); desc != "" && gjson.Valid(desc) {
		zapReq = gjson.Parse(desc)
	}

	zapper := util.GetTagValue(evt.Tags, "P")
	if zapper == "" {
		zapper = zapReq.Get("pubkey").String()
	}
	if zapper == "" {
		return types.ZapReceipt{}, false
	}

	amount := nips.DecodeAmount(util.GetTagValue(evt.Tags, "bolt11"))
	if amount == 0 {
		amount = msatsTagToSats(util.GetTagValue(evt.Tags, "amount"))
	}
	if amount == 0 {
		amount = msatsTagToSats(requestAmountTag(zapReq))
	}

	return types.ZapReceipt{
		ZapperPubKey: zapper,
		Amount:       amount,
		EventID:      eventID,
		ReceiptID:    evt.ID,
		CreatedAt:    evt.CreatedAt,
	}, true
}

func requestAmountTag(zapReq gjson.Result) string {
	var amount string
	zapReq.Get("tags").ForEach(func(_, tag gjson.Result) bool {
		if tag.Get("0").String() == "amount" {
			amount = tag.Get("1").String()
			return false
		}
		return true
	})
	return amount
}

func msatsTagToSats(v string) int64 {
	msats, err := strconv.ParseInt(v, 10, 64)
	if err != nil || msats <= 0 {
		return 0
	}
	return msats / 1000
}
