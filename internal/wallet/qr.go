package wallet

import (
	"strings"

	"github.com/skip2/go-qrcode"
)

// InvoiceQR renders invoice as a PNG QR code of its lightning: URI.
func InvoiceQR(invoice string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	uri := "lightning:" + strings.TrimPrefix(strings.ToLower(invoice), "lightning:")
	return qrcode.Encode(uri, qrcode.Medium, size)
}
