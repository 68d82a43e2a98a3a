package credential

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const DefaultImageSize = 256

// RenderPNG draws payload as a scannable QR code. The image carries no
// semantics beyond the payload string itself.
func RenderPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("credential: rendering QR code: %w", err)
	}
	return png, nil
}
