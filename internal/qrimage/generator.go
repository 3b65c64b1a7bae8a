// Package qrimage renders payment payloads into QR images. It knows nothing
// about the payload structure; any printable string can be encoded.
package qrimage

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

type Generator struct {
	size int
}

func NewGenerator(size int) *Generator {
	if size <= 0 {
		size = defaultSize
	}
	return &Generator{size: size}
}

// Generate encodes content into a PNG image.
func (g *Generator) Generate(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, g.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr image: %w", err)
	}
	return png, nil
}

// GenerateDataURI encodes content into a PNG wrapped in a data URI, the form
// the POS frontend drops straight into an <img> tag.
func (g *Generator) GenerateDataURI(content string) (string, error) {
	png, err := g.Generate(content)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
