package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"
)

// MaxWidth is the widest image forwarded to a model; wider uploads are downscaled.
const MaxWidth = 1024

var (
	// ErrEmptyImage is returned when an upload has no content.
	ErrEmptyImage = errors.New("image file is empty")
	// ErrUnsupportedImage is returned for anything other than JPEG or PNG.
	ErrUnsupportedImage = errors.New("unsupported image type, only JPEG and PNG images are allowed")
)

// Image is an image ready to be sent to a model.
type Image struct {
	Data   []byte
	Format string // "jpeg" or "png"
}

// MIMEType returns the image's content type.
func (i Image) MIMEType() string {
	return "image/" + i.Format
}

// Extension returns the file extension for the image format.
func (i Image) Extension() string {
	if i.Format == "jpeg" {
		return ".jpg"
	}
	return "." + i.Format
}

// Hash calculates the SHA256 hash of the image data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Prepare validates raw upload bytes and downscales images wider than MaxWidth.
func Prepare(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}

	var format string
	switch mtype := mimetype.Detect(data); {
	case mtype.Is("image/jpeg"):
		format = "jpeg"
	case mtype.Is("image/png"):
		format = "png"
	default:
		return Image{}, fmt.Errorf("%w: got %s", ErrUnsupportedImage, mtype.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= MaxWidth {
		return Image{Data: data, Format: format}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}
	img = resize.Resize(MaxWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	case "png":
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return Image{}, fmt.Errorf("failed to encode image: %w", err)
	}

	return Image{Data: buf.Bytes(), Format: format}, nil
}

// Save writes the image to dir as <hash><ext> and returns the file name.
func Save(dir, hash string, img Image) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	name := hash + img.Extension()
	if err := os.WriteFile(filepath.Join(dir, name), img.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return name, nil
}
