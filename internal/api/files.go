package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"net/http"
	"net/url"
	"strings"

	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

const (
	DefaultIconDir = "/ICONS"
	MaxUploadBytes = 5 << 20
)

var allowedUploadTypes = map[string]bool{
	"image/gif":  true,
	"image/jpeg": true,
}

// Icon sizes the matrix can show.
var allowedDimensions = []image.Point{{X: 8, Y: 8}, {X: 32, Y: 8}}

type FileEntry struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

func (f FileEntry) IsDir() bool { return f.Type == "dir" }

// Upload is one image selected for the device.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type uploadBody struct {
	IsFile bool   `json:"isFile"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Data   string `json:"data"`
}

type FileService struct {
	base
}

// List returns the entries in dir, /ICONS when empty.
func (s *FileService) List(ctx context.Context, dir string) Result[[]FileEntry] {
	if dir == "" {
		dir = DefaultIconDir
	}
	return decode[[]FileEntry](s.get(ctx, EndpointList+"?dir="+url.QueryEscape(dir)))
}

// ValidateUpload checks type, size and pixel dimensions.
func ValidateUpload(u Upload) error {
	var fields []apierr.FieldError
	if !allowedUploadTypes[u.ContentType] {
		fields = append(fields, apierr.FieldError{Field: "file", Message: "Invalid file type. Only GIF and JPEG allowed."})
	}
	if len(u.Data) > MaxUploadBytes {
		fields = append(fields, apierr.FieldError{Field: "file", Message: "File too large. Maximum size is 5MB."})
	}
	if len(fields) == 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(u.Data))
		if err != nil {
			fields = append(fields, apierr.FieldError{Field: "file", Message: "Unable to read image"})
		} else if !dimensionAllowed(cfg.Width, cfg.Height) {
			fields = append(fields, apierr.FieldError{
				Field:   "file",
				Message: fmt.Sprintf("Invalid dimensions %dx%d. Use 8x8 or 32x8.", cfg.Width, cfg.Height),
			})
		}
	}
	if len(fields) > 0 {
		return &apierr.ValidationError{Fields: fields}
	}
	return nil
}

func dimensionAllowed(w, h int) bool {
	for _, d := range allowedDimensions {
		if d.X == w && d.Y == h {
			return true
		}
	}
	return false
}

// Upload validates u and writes it into dir as a data URL.
func (s *FileService) Upload(ctx context.Context, u Upload, dir string) Result[json.RawMessage] {
	if err := ValidateUpload(u); err != nil {
		return fail[json.RawMessage](err)
	}
	if dir == "" {
		dir = DefaultIconDir
	}
	name := SanitizeFilename(u.Name)
	body := uploadBody{
		IsFile: true,
		Name:   name,
		Path:   strings.TrimSuffix(dir, "/") + "/" + name,
		Data:   "data:" + u.ContentType + ";base64," + base64.StdEncoding.EncodeToString(u.Data),
	}
	return s.postJSON(ctx, EndpointEdit, body)
}

// Delete removes the file at path.
func (s *FileService) Delete(ctx context.Context, path string) Result[json.RawMessage] {
	return s.form(ctx, http.MethodDelete, url.Values{"path": {path}})
}

// Rename moves from to to.
func (s *FileService) Rename(ctx context.Context, from, to string) Result[json.RawMessage] {
	return s.form(ctx, http.MethodPut, url.Values{"path": {to}, "src": {from}})
}

func (s *FileService) form(ctx context.Context, method string, values url.Values) Result[json.RawMessage] {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	raw, err := s.call(ctx, EndpointEdit, protocol.Descriptor{
		Method: method,
		Header: h,
		Body:   []byte(values.Encode()),
	})
	if err != nil {
		return fail[json.RawMessage](err)
	}
	return ok(raw)
}

// ImageURL returns something an image view can load. Embedded, the bytes
// come back through the bridge as a data URL; on failure the raw path is
// returned so the caller can still try it.
func (s *FileService) ImageURL(ctx context.Context, path string) string {
	if !s.caller.Embedded() {
		return s.origin.Get(ctx) + path
	}
	raw, err := s.call(ctx, path, protocol.Descriptor{Method: http.MethodGet, IsImage: true})
	if err != nil {
		return path
	}
	var dataURL string
	if err := json.Unmarshal(raw, &dataURL); err != nil || dataURL == "" {
		return path
	}
	return dataURL
}
