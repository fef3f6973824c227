package menuimage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

const (
	// MaxWidth bounds uploaded menu photos; wider images are scaled down before upload.
	MaxWidth = 1600
	Quality  = 85
)

var ErrEmptyImage = errors.New("menu image is empty")

type Image struct {
	Data     []byte
	Filename string
	Resized  bool
}

// Prepare shrinks JPEG and PNG photos wider than MaxWidth and re-encodes them as JPEG.
// Other formats, and images that fail to decode, are passed through for the backend to judge.
func Prepare(data []byte, filename string) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if filename == "" {
		filename = "menu.jpg"
	}

	var (
		img image.Image
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		img, err = png.Decode(bytes.NewReader(data))
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return &Image{Data: data, Filename: filename}, nil
	}
	if err != nil {
		return &Image{Data: data, Filename: filename}, nil
	}

	if img.Bounds().Dx() <= MaxWidth {
		return &Image{Data: data, Filename: filename}, nil
	}

	scaled := resize.Resize(MaxWidth, 0, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode resized menu image: %w", err)
	}

	name := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jpg"
	return &Image{Data: buf.Bytes(), Filename: name, Resized: true}, nil
}
