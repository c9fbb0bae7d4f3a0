package engine

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// The data-URI header looks like "data:image/jpeg;base64" or
// "data:image/svg+xml;base64" depending on format.
var dataURIPattern = regexp.MustCompile(`^data:image/(?P<format>\w+)(?:\+\w+)?;base64$`)

const defaultImageFormat = "jpeg"

// ImageData holds a decoded image and its declared file format.
type ImageData struct {
	Format string
	Data   []byte
}

// DecodeDataURI parses a base64 data URI into raw image bytes and format.
// An unrecognized header falls back to jpeg rather than failing.
func DecodeDataURI(uri string) (ImageData, error) {
	meta, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return ImageData{}, fmt.Errorf("malformed image data URI")
	}

	format := defaultImageFormat
	if m := dataURIPattern.FindStringSubmatch(meta); m != nil {
		format = strings.TrimSpace(m[dataURIPattern.SubexpIndex("format")])
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ImageData{}, fmt.Errorf("decode image payload: %w", err)
	}

	return ImageData{Format: format, Data: data}, nil
}

// ContentHash returns the uppercase hex SHA-256 of the raw bytes, used as the
// deduplication key for the blob store.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%X", sum)
}
