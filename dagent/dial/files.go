package dial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
)

// BucketInfo describes the caller's file storage layout as reported by
// the DIAL core. Appdata, when present, is the per-application home
// directory relative to the files root.
type BucketInfo struct {
	Bucket  string `json:"bucket"`
	Appdata string `json:"appdata,omitempty"`
}

// Bucket resolves the file bucket for the given credential.
func (c *Client) Bucket(ctx context.Context, apiKey string) (*BucketInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/bucket", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dial request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	var info BucketInfo
	if err := unmarshalBody(resp.Body, &info); err != nil {
		return nil, err
	}
	if info.Bucket == "" {
		return nil, fmt.Errorf("dial: bucket response has no bucket")
	}
	return &info, nil
}

// AppDataHome returns the application data directory for the credential,
// the place generated artifacts are uploaded to.
func (c *Client) AppDataHome(ctx context.Context, apiKey string) (string, error) {
	info, err := c.Bucket(ctx, apiKey)
	if err != nil {
		return "", err
	}
	if info.Appdata == "" {
		return "", fmt.Errorf("dial: bucket %s has no appdata home", info.Bucket)
	}
	return strings.Trim(info.Appdata, "/"), nil
}

// DownloadFile fetches a file by its attachment URL. Relative URLs such
// as "files/BUCKET/doc.pdf" resolve against the DIAL files API, absolute
// http(s) URLs are fetched directly. Returns the file name derived from
// the URL path together with the raw bytes.
func (c *Client) DownloadFile(ctx context.Context, apiKey, fileURL string) (string, []byte, error) {
	target := fileURL
	relative := !strings.HasPrefix(fileURL, "http://") && !strings.HasPrefix(fileURL, "https://")
	if relative {
		target = c.baseURL + "/v1/" + strings.TrimLeft(fileURL, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if relative {
		req.Header.Set(apiKeyHeader, apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("download %s: %w", fileURL, readAPIError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("download %s: %w", fileURL, err)
	}
	return fileName(target), data, nil
}

// UploadFile stores data under the relative files path, for example
// "files/BUCKET/appdata/app/plot.png", and returns that path as the
// attachment URL for the stored file.
func (c *Client) UploadFile(ctx context.Context, apiKey, relPath, mimeType string, data []byte) (string, error) {
	relPath = strings.TrimLeft(relPath, "/")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, path.Base(relPath)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/"+relPath, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set(apiKeyHeader, apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", relPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload %s: %w", relPath, readAPIError(resp))
	}
	return relPath, nil
}

func unmarshalBody(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func fileName(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return path.Base(target)
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil {
		return path.Base(u.Path)
	}
	return name
}
