package telegram

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

func encodeQRPNG(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("qr url is empty")
	}

	png, err := qrcode.Encode(url, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}

	return png, nil
}

// QRDataURL renders the PNG as an inline data URL for direct <img> embedding.
func QRDataURL(png []byte) string {
	if len(png) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
