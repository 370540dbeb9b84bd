// Package pdf – Gotenberg HTTP client used to capture report thumbnails.
// Final PDF rendering happens in the CRM backend; Gotenberg only needs to
// turn the preview HTML into a PNG snapshot.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"reportflow_backend/platform/config"
)

// GotenbergClient talks to a Gotenberg instance over its multipart form API.
type GotenbergClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewGotenbergClient creates a client from the Gotenberg configuration.
// If username and password are non-empty, every request includes HTTP Basic Auth.
func NewGotenbergClient(cfg config.GotenbergConfig) *GotenbergClient {
	return &GotenbergClient{
		baseURL:  cfg.GetGotenbergURL(),
		username: cfg.GetGotenbergUsername(),
		password: cfg.GetGotenbergPassword(),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ScreenshotOpts configures the HTML→PNG capture request.
type ScreenshotOpts struct {
	Width int
	// WaitDelay adds a delay before capture (e.g. "1s") for font loading.
	WaitDelay string
}

// ThumbnailOpts returns capture options sized for report card thumbnails.
func ThumbnailOpts() ScreenshotOpts {
	return ScreenshotOpts{
		Width:     800,
		WaitDelay: "1s",
	}
}

// Screenshot renders index.html in Chromium and returns a PNG capture.
func (g *GotenbergClient) Screenshot(ctx context.Context, indexHTML []byte, opts ScreenshotOpts) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"format": "png",
	}
	if opts.Width > 0 {
		fields["width"] = fmt.Sprintf("%d", opts.Width)
	}
	if opts.WaitDelay != "" {
		fields["waitDelay"] = opts.WaitDelay
		fields["skipNetworkIdleEvent"] = "true"
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if err := addFilePart(writer, "index.html", "text/html", indexHTML); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return g.doPost(ctx, "/forms/chromium/screenshot/html", body, writer.FormDataContentType())
}

// doPost sends a POST request and reads the response body.
func (g *GotenbergClient) doPost(ctx context.Context, path string, body *bytes.Buffer, contentType string) ([]byte, error) {
	url := g.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if g.username != "" && g.password != "" {
		req.SetBasicAuth(g.username, g.password)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gotenberg %s returned %d: %s", path, resp.StatusCode, string(errBody))
	}

	result, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", path, err)
	}
	return result, nil
}

// addFilePart adds a file to the multipart form.
func addFilePart(w *multipart.Writer, filename, mimeType string, content []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, filename))
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", filename, err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write part %s: %w", filename, err)
	}
	return nil
}
