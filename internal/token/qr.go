package token

import (
	qrcode "github.com/skip2/go-qrcode"
)

// PNG renders content as a QR code image of size×size pixels.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}

// Terminal renders content with half-block characters for a console.
func Terminal(content string) (string, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
