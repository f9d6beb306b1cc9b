package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type httpDownloader struct {
	client *http.Client
}

func newHTTPDownloader(timeout time.Duration) *httpDownloader {
	return &httpDownloader{client: &http.Client{Timeout: timeout}}
}

func (h *httpDownloader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
	if err != nil {
		return nil, err
	}

	if len(data) > maxMediaSize {
		return nil, fmt.Errorf("media too large: over %d bytes", maxMediaSize)
	}

	return data, nil
}
