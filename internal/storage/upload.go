package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
)

var (
	ErrNoFile          = errors.New("no file provided")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrBadDataURL      = errors.New("malformed data URL")
)

// AllowedExtensions are the upload file types accepted by ReadMultipart.
var AllowedExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "bmp": {}, "webp": {},
}

// AllowedFile reports whether filename carries an accepted image extension.
func AllowedFile(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	_, ok := AllowedExtensions[ext]
	return ok
}

// ReadMultipart reads an uploaded image, enforcing the extension whitelist
// and the size cap.
func ReadMultipart(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if fh == nil || fh.Filename == "" {
		return nil, ErrNoFile
	}
	if !AllowedFile(fh.Filename) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(fh.Filename))
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, ErrTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	if maxBytes <= 0 {
		maxBytes = DefaultHTTPOptions().MaxBytes
	}
	return readLimited(f, maxBytes)
}

// DecodeDataURL decodes a base64 data URL such as
// "data:image/png;base64,iVBOR...". It returns the payload and its media type.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data: prefix", ErrBadDataURL)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing payload", ErrBadDataURL)
	}

	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: only base64 payloads are supported", ErrBadDataURL)
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}

	payload = strings.TrimRight(payload, "\r\n ")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrBadDataURL)
	}
	return data, mediaType, nil
}

// DataURLFetcher serves data: references through the ImageFetcher interface.
type DataURLFetcher struct {
	MaxBytes int64
}

func (d DataURLFetcher) FetchBytes(_ context.Context, ref string) ([]byte, error) {
	data, _, err := DecodeDataURL(ref)
	if err != nil {
		return nil, err
	}
	if d.MaxBytes > 0 && int64(len(data)) > d.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
