// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package imageutil compresses generated and uploaded images into the byte
// budgets the pipeline requires.
package imageutil

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

const (
	// MaxReferenceBytes is the budget for reference images passed to
	// generators: the compressed cover and user-uploaded photos.
	MaxReferenceBytes = 200 << 10
	// MaxThumbnailBytes is the budget for stored thumbnails.
	MaxThumbnailBytes = 50 << 10

	startQuality = 85
	minQuality   = 25
	minWidth     = 16
)

// Shrink returns data unchanged when it is already within maxBytes, otherwise
// re-encodes it as JPEG, lowering quality and then resolution until it fits.
func Shrink(data []byte, maxBytes int) ([]byte, error) {
	if len(data) <= maxBytes {
		return data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return encodeWithin(img, maxBytes)
}

// Thumbnail re-encodes data as a JPEG within maxBytes regardless of the input
// size or format.
func Thumbnail(data []byte, maxBytes int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return encodeWithin(img, maxBytes)
}

// encodeWithin encodes img as JPEG, walking down a quality ladder and halving
// the resolution until the result fits in maxBytes.
func encodeWithin(img image.Image, maxBytes int) ([]byte, error) {
	for {
		for q := startQuality; q >= minQuality; q -= 10 {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
				return nil, fmt.Errorf("failed to encode jpeg: %w", err)
			}
			if buf.Len() <= maxBytes {
				return buf.Bytes(), nil
			}
		}
		width := img.Bounds().Dx() / 2
		if width < minWidth {
			return nil, fmt.Errorf("cannot compress image into %d bytes", maxBytes)
		}
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
}
