package order

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/blobstore"
)

const (
	maxProofWidth = 1600
	proofQuality  = 85
)

// Upload is a file received from a client.
type Upload struct {
	Data        []byte
	ContentType string
}

var qrImageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// normalizeProof decodes a payment proof, applies EXIF orientation, caps the
// width and re-encodes it as JPEG.
func normalizeProof(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Validation("payment proof is not a readable image")
	}
	img = fitWidth(img, maxProofWidth)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(proofQuality)); err != nil {
		return nil, fmt.Errorf("encode payment proof: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWidth(img image.Image, max int) image.Image {
	if img.Bounds().Dx() <= max {
		return img
	}
	return imaging.Resize(img, max, 0, imaging.Lanczos)
}

// blobError maps blob store failures onto error kinds.
func blobError(err error, what string) error {
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge),
		errors.Is(err, blobstore.ErrEmptyBlob),
		errors.Is(err, blobstore.ErrInvalidPath):
		return apperr.Validation("%s: %v", what, err)
	default:
		return apperr.Upstream(err, "store %s", what)
	}
}
