// Package imaging validates uploaded image payloads before anything is
// written to the datastore.
package imaging

import (
	"bytes"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"strings"

	"github.com/radgrid/radreview-go/internal/errors"
)

// Media types accepted for uploaded X-rays.
const (
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
)

// formatForMediaType maps accepted media types to the format name reported
// by image.Decode.
var formatForMediaType = map[string]string{
	MediaTypePNG:  "png",
	MediaTypeJPEG: "jpeg",
}

// MediaTypeForFilename derives a media type from a filename extension,
// defaulting to PNG the way the upload path always has.
func MediaTypeForFilename(filename string) string {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") {
		return MediaTypeJPEG
	}
	return MediaTypePNG
}

// IsSupportedMediaType reports whether the media type is accepted for upload.
func IsSupportedMediaType(mediaType string) bool {
	_, ok := formatForMediaType[mediaType]
	return ok
}

// Validate checks that data is a non-empty, decodable image whose actual
// format matches the declared media type. It performs a full header decode
// but does not retain the pixel data.
func Validate(data []byte, mediaType string) error {
	if len(data) == 0 {
		return errors.Newf("empty image payload").
			Component("imaging").
			Category(errors.CategoryValidation).
			Build()
	}

	wantFormat, ok := formatForMediaType[mediaType]
	if !ok {
		return errors.Newf("unsupported media type %q", mediaType).
			Component("imaging").
			Category(errors.CategoryValidation).
			Context("media_type", mediaType).
			Build()
	}

	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return errors.Newf("invalid image: %v", err).
			Component("imaging").
			Category(errors.CategoryImageDecode).
			Context("media_type", mediaType).
			Build()
	}
	if format != wantFormat {
		return errors.Newf("image format %q does not match declared media type %q", format, mediaType).
			Component("imaging").
			Category(errors.CategoryValidation).
			Context("decoded_format", format).
			Context("media_type", mediaType).
			Build()
	}
	return nil
}
