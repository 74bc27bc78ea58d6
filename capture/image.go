// Package capture prepares images and microphone recordings for upload.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxDirectImageSize is the largest image sent without re-encoding.
	MaxDirectImageSize = 1 << 20
	MaxImageDimension  = 1200
	JPEGQuality        = 80
)

// LoadImage reads an image file and prepares it with PrepareImage.
func LoadImage(name string) (dataURL string, err error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("capture: failed to read image: %w", err)
	}
	return PrepareImage(data)
}

// PrepareImage returns the image as a data URL. Images over MaxDirectImageSize are
// scaled so that neither side exceeds MaxImageDimension and re-encoded as JPEG.
func PrepareImage(data []byte) (dataURL string, err error) {
	mediaType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("capture: expected an image, got %s", mediaType)
	}
	if len(data) <= MaxDirectImageSize {
		return dataurl.New(data, mediaType).String(), nil
	}
	compressed, err := compress(data)
	if err != nil {
		return "", err
	}
	return dataurl.New(compressed, "image/jpeg").String(), nil
}

func compress(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("capture: failed to decode image: %w", err)
	}
	w, h := ScaledSize(src.Bounds().Dx(), src.Bounds().Dy())
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha channel, transparent areas become white.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("capture: failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ScaledSize keeps the aspect ratio while limiting the larger side to MaxImageDimension.
func ScaledSize(width, height int) (w, h int) {
	w, h = width, height
	if w > h && w > MaxImageDimension {
		h = h * MaxImageDimension / w
		w = MaxImageDimension
	} else if h > MaxImageDimension {
		w = w * MaxImageDimension / h
		h = MaxImageDimension
	}
	return max(w, 1), max(h, 1)
}
