package mapserver

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "github.com/spakin/netpbm" // registers PBM/PGM/PPM/PAM with image.Decode
)

// Limits applied before a map image is decoded.
const (
	MaxImageBytes  = 256 << 20
	MaxImagePixels = 1 << 28 // 16384 x 16384
)

// ErrImageTooLarge is returned for images past MaxImageBytes or
// MaxImagePixels, or with non-positive dimensions.
var ErrImageTooLarge = errors.New("map image too large")

// decodeImage decodes any format registered with image.Decode: PNG, JPEG,
// BMP, GIF and TIFF through imaging, and netpbm greymaps. The header is
// checked against the size limits before pixels are allocated.
func decodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read map image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, MaxImageBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode map image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %s image is %dx%d", ErrImageTooLarge, format, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode map image: %w", err)
	}
	return img, nil
}
