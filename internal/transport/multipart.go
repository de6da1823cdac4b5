package transport

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// NewMultipartFile builds a multipart/form-data body whose only part is the
// file content under field. It returns the body and its Content-Type.
func NewMultipartFile(field, filename string, r io.Reader) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("copying %s into request: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return body, w.FormDataContentType(), nil
}
