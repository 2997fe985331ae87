// Package fetch registers callables that talk HTTP: "http_request" reads a
// URL and "upload" sends a file to a pre-signed URL.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the callable.Module interface for this package.
type Module struct {
	// Client is shared by all calls to reuse connections. Defaults to
	// http.DefaultClient.
	Client *http.Client
}

func (m *Module) client() *http.Client {
	if m.Client == nil {
		return http.DefaultClient
	}
	return m.Client
}

// Request performs an HTTP request. The only positional argument is the
// URL; the keyword arguments "method" (default GET) and "body" are
// optional. It returns an object with status_code and body.
func (m *Module) Request(ctx context.Context, args []cty.Value, kwargs map[string]cty.Value) (cty.Value, error) {
	if len(args) != 1 || args[0].Type() != cty.String || args[0].IsNull() {
		return cty.NilVal, errors.New("http_request expects the URL as its only argument")
	}
	url := args[0].AsString()

	method := http.MethodGet
	var body io.Reader
	for k, v := range kwargs {
		if v.Type() != cty.String || v.IsNull() {
			return cty.NilVal, fmt.Errorf("http_request argument %q must be a string", k)
		}
		switch k {
		case "method":
			method = strings.ToUpper(v.AsString())
		case "body":
			body = strings.NewReader(v.AsString())
		default:
			return cty.NilVal, fmt.Errorf("http_request has no argument %q", k)
		}
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", method, "url", url)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client().Do(req)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to read response body: %w", err)
	}
	return cty.ObjectVal(map[string]cty.Value{
		"status_code": cty.NumberIntVal(int64(resp.StatusCode)),
		"body":        cty.StringVal(string(bodyBytes)),
	}), nil
}

// Upload sends the file at path to url with a PUT request and returns the
// response status. Any status other than 200 is an error.
func (m *Module) Upload(ctx context.Context, path, url string) (string, error) {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open source file '%s': %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to get file stats for '%s': %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file", "source", path, "size", stat.Size(), "contentType", contentType)

	resp, err := m.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed with status: %s", resp.Status)
	}
	logger.Info("Successfully uploaded file", "status", resp.Status)
	return resp.Status, nil
}

// Register registers the callables with the registry.
func (m *Module) Register(r *callable.Registry) {
	r.Register("http_request", m.Request)
	r.RegisterFunc("upload", m.Upload)
}
