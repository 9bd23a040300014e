package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrUndecodable marks a frame that is not a supported image.
var ErrUndecodable = errors.New("frame is not a decodable image")

// Validate checks the frame header without decoding pixels.
func Validate(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty frame", ErrUndecodable)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return nil
}

// Decode fully decodes a frame and returns its format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, format, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CropJPEG cuts region out of the frame and re-encodes it as JPEG.
// The region is clamped to the image bounds.
func CropJPEG(data []byte, region image.Rectangle) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	r := region.Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", region, img.Bounds())
	}

	if si, ok := img.(subImager); ok {
		img = si.SubImage(r)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
