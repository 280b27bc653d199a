package whisperd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// HTTPStatusError carries the sidecar's non-2xx response detail so the
// orchestrator can log the real cause while storing only a sanitized
// message on the failed call.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "whisperd status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("whisperd %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("whisperd %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func (c *Client) postAudio(ctx context.Context, path, filename string, audio io.Reader, out any) error {
	pipeReader, pipeWriter := io.Pipe()
	form := multipart.NewWriter(pipeWriter)

	go func() {
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			_ = pipeWriter.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			_ = pipeWriter.CloseWithError(err)
			return
		}
		if c.model != "" {
			if err := form.WriteField("model", c.model); err != nil {
				_ = pipeWriter.CloseWithError(err)
				return
			}
		}
		_ = pipeWriter.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pipeReader)
	if err != nil {
		return fmt.Errorf("create transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisperd transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  "transcribe",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode transcribe response: %w", err)
	}
	return nil
}
