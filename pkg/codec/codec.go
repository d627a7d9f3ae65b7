package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"
)

// Decoder turns stored frame payloads into images
type Decoder struct {
	config Config
}

// Config holds configuration for the decoder
type Config struct {
	SupportedFormats []string
}

// New creates a Decoder accepting png, jpeg and webp payloads
func New() *Decoder {
	return &Decoder{
		config: Config{
			SupportedFormats: []string{"png", "jpeg", "webp"},
		},
	}
}

// NewWithConfig creates a Decoder with custom configuration
func NewWithConfig(config Config) *Decoder {
	return &Decoder{config: config}
}

// Decode decodes an encoded frame payload
func (d *Decoder) Decode(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// libwebp handles the extended formats the x/image decoder rejects
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		img, format = wimg, "webp"
	}
	if !d.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	return img, nil
}

// DecodeConfig returns the pixel dimensions of an encoded payload without
// decoding the pixels.
func (d *Decoder) DecodeConfig(data []byte) (width, height int, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		w, h, _, werr := webp.GetInfo(data)
		if werr != nil {
			return 0, 0, fmt.Errorf("failed to read image header: %w", err)
		}
		return w, h, nil
	}
	if !d.isFormatSupported(format) {
		return 0, 0, fmt.Errorf("unsupported image format: %s", format)
	}
	return cfg.Width, cfg.Height, nil
}

func (d *Decoder) isFormatSupported(format string) bool {
	for _, supported := range d.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
