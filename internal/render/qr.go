package render

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QR renders text (typically a SEI address or URL) as a QR code PNG
// and returns the file's absolute path.
func (r *Renderer) QR(text string, size int) (string, error) {
	if text == "" {
		return "", fmt.Errorf("qr: empty text")
	}
	if size <= 0 {
		size = 256
	}

	path, err := r.outputPath("", "qr")
	if err != nil {
		return "", err
	}
	if err := qrcode.WriteFile(text, qrcode.Medium, size, path); err != nil {
		return "", fmt.Errorf("qr: %w", err)
	}

	r.logger.Debug("rendered qr image", "path", path, "size", size)
	return path, nil
}
