package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Static errors for data URI handling.
var (
	// ErrNotDataURI is returned when a string is not a base64 data URI.
	ErrNotDataURI = errors.New("media: not a base64 data URI")
	// ErrNotImage is returned when uploaded content is not an image.
	ErrNotImage = errors.New("media: content is not an image")
	// ErrTooLarge is returned when uploaded content exceeds the size limit.
	ErrTooLarge = errors.New("media: content too large")
)

// EncodeDataURI embeds data in a data URI, sniffing its MIME type.
func EncodeDataURI(data []byte) string {
	mime := mimetype.Detect(data)
	return "data:" + baseMIME(mime.String()) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI returns the payload and MIME type of a base64 data URI.
// Bare base64 without the data: header is accepted and sniffed.
func DecodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		data, err := base64.StdEncoding.DecodeString(uri)
		if err != nil {
			return nil, "", ErrNotDataURI
		}
		return data, baseMIME(mimetype.Detect(data).String()), nil
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", ErrNotDataURI
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrNotDataURI, err)
	}

	mime := strings.TrimSuffix(header, ";base64")
	if mime == "" {
		mime = baseMIME(mimetype.Detect(data).String())
	}
	return data, mime, nil
}

// ReadImage reads an uploaded image and returns it as a data URI.
func ReadImage(r io.Reader, maxBytes int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("media: read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return "", ErrTooLarge
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mime.String())
	}

	return "data:" + baseMIME(mime.String()) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// baseMIME drops MIME parameters such as "; charset=utf-8".
func baseMIME(m string) string {
	base, _, _ := strings.Cut(m, ";")
	return strings.TrimSpace(base)
}
