package hubapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/tinyvillage/villagehub/internal/domain/item"
)

// Multipart part names expected by the items endpoints.
const (
	PartItemDetails = "itemDetails"
	PartImageFile   = "imageFile"
)

// NewItemForm encodes an item create request: details as a JSON part
// followed by one imageFile part per image. The body is buffered so the
// gateway can resend it after a token refresh.
func NewItemForm(details item.Details, images []item.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, "", fmt.Errorf("marshal item details: %w", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, PartItemDetails))
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create details part: %w", err)
	}
	if _, err := part.Write(detailsJSON); err != nil {
		return nil, "", fmt.Errorf("write details part: %w", err)
	}

	for _, img := range images {
		if err := writeImage(w, img); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// NewImageForm encodes a single additional image for an existing item.
func NewImageForm(img item.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeImage(w, img); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeImage(w *multipart.Writer, img item.Image) error {
	name := filepath.Base(img.Filename)
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	ct := img.ContentType
	if ct == "" {
		ct = http.DetectContentType(img.Data)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		PartImageFile, quoteEscaper.Replace(name)))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create image part %s: %w", name, err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return fmt.Errorf("write image part %s: %w", name, err)
	}
	return nil
}
