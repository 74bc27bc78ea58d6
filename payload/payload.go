// Package payload encodes relay requests as the multipart or JSON bodies expected by n8n workflows.
package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime/multipart"
	"net/textproto"
	"slices"
	"strings"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"
)

const (
	ImageFileName  = "image.jpg"
	AudioFieldName = "audioFile"
	AudioFileName  = "audio.mp3"
	AudioMediaType = "audio/mpeg"

	defaultImageMediaType = "image/jpeg"
)

// IsImageDataURL reports whether s is an inline image rather than a reference to one.
func IsImageDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image")
}

func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// EncodeMultipart writes every populated field as a string part, except a data URL image
// which becomes a binary image part, and audio which becomes a binary audio part.
func EncodeMultipart(log *slog.Logger, req models.RelayRequest) (body *bytes.Buffer, contentType string, err error) {
	body = new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for _, f := range req.Fields() {
		switch f.Name {
		case models.FieldImage:
			if err = writeImagePart(log, w, f.Value); err != nil {
				return nil, "", err
			}
		case models.FieldAudioBase64:
			audio, err := DecodeAudio(f.Value)
			if err != nil {
				return nil, "", err
			}
			if err = writeFilePart(w, AudioFieldName, AudioFileName, AudioMediaType, audio); err != nil {
				return nil, "", err
			}
		default:
			if err = w.WriteField(f.Name, f.Value); err != nil {
				return nil, "", fmt.Errorf("payload: failed to write field %q: %w", f.Name, err)
			}
		}
	}
	for _, k := range slices.Sorted(maps.Keys(req.Extra)) {
		v, err := stringify(req.Extra[k])
		if err != nil {
			return nil, "", fmt.Errorf("payload: failed to encode field %q: %w", k, err)
		}
		if err = w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("payload: failed to write field %q: %w", k, err)
		}
	}
	if err = w.Close(); err != nil {
		return nil, "", fmt.Errorf("payload: failed to close multipart writer: %w", err)
	}
	return body, w.FormDataContentType(), nil
}

func writeImagePart(log *slog.Logger, w *multipart.Writer, image string) error {
	if !IsImageDataURL(image) {
		if err := w.WriteField(models.FieldImage, image); err != nil {
			return fmt.Errorf("payload: failed to write field %q: %w", models.FieldImage, err)
		}
		return nil
	}
	du, err := dataurl.DecodeString(image)
	if err != nil {
		log.Warn("dropping image that could not be decoded", slog.Any("error", err))
		return nil
	}
	return writeFilePart(w, models.FieldImage, ImageFileName, du.ContentType(), du.Data)
}

func writeFilePart(w *multipart.Writer, field, filename, contentType string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("payload: failed to create %q part: %w", field, err)
	}
	if _, err = part.Write(data); err != nil {
		return fmt.Errorf("payload: failed to write %q part: %w", field, err)
	}
	return nil
}

func stringify(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeAudio accepts raw base64 or a data URL.
func DecodeAudio(s string) ([]byte, error) {
	if IsDataURL(s) {
		du, err := dataurl.DecodeString(s)
		if err != nil {
			return nil, apierr.ValidationError{Message: fmt.Sprintf("invalid audio data URL: %v", err)}
		}
		return du.Data, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, apierr.ValidationError{Message: fmt.Sprintf("invalid audio base64: %v", err)}
	}
	return data, nil
}

// EncodeJSON omits empty fields and normalises data URL images to a base64 data URL
// with an image content type. Other image references are passed through untouched.
func EncodeJSON(log *slog.Logger, req models.RelayRequest) ([]byte, error) {
	if IsDataURL(req.Image) {
		image, err := NormalizeImageDataURL(req.Image)
		if err != nil {
			log.Warn("dropping image that could not be decoded", slog.Any("error", err))
		}
		req.Image = image
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("payload: failed to encode JSON: %w", err)
	}
	return b, nil
}

// NormalizeImageDataURL re-encodes a data URL as base64, keeping the declared type when it
// is an image type, otherwise sniffing the content and falling back to image/jpeg.
func NormalizeImageDataURL(s string) (string, error) {
	du, err := dataurl.DecodeString(s)
	if err != nil {
		return "", err
	}
	return dataurl.New(du.Data, imageMediaType(du.ContentType(), du.Data)).String(), nil
}

func imageMediaType(declared string, data []byte) string {
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if sniffed := mimetype.Detect(data).String(); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return defaultImageMediaType
}

// CopyMultipart rebuilds a multipart body from a parsed form, leaving out the named fields.
// Values are written before files, each group in key order.
func CopyMultipart(form *multipart.Form, skip ...string) (body *bytes.Buffer, contentType string, err error) {
	body = new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for _, k := range slices.Sorted(maps.Keys(form.Value)) {
		if slices.Contains(skip, k) {
			continue
		}
		for _, v := range form.Value[k] {
			if err = w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("payload: failed to copy field %q: %w", k, err)
			}
		}
	}
	for _, k := range slices.Sorted(maps.Keys(form.File)) {
		if slices.Contains(skip, k) {
			continue
		}
		for _, fh := range form.File[k] {
			if err = copyFile(w, k, fh); err != nil {
				return nil, "", err
			}
		}
	}
	if err = w.Close(); err != nil {
		return nil, "", fmt.Errorf("payload: failed to close multipart writer: %w", err)
	}
	return body, w.FormDataContentType(), nil
}

func copyFile(w *multipart.Writer, field string, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("payload: failed to open file %q: %w", field, err)
	}
	defer f.Close()
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fh.Filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("payload: failed to create %q part: %w", field, err)
	}
	if _, err = io.Copy(part, f); err != nil {
		return fmt.Errorf("payload: failed to copy file %q: %w", field, err)
	}
	return nil
}
