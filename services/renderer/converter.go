package renderer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"fitcoach-controlplane/pkg/errutil"

	"github.com/go-resty/resty/v2"
)

// Converter turns an HTML page into PDF bytes.
type Converter interface {
	Convert(ctx context.Context, html []byte) ([]byte, error)
}

// GotenbergConverter talks to a Gotenberg compatible HTML to PDF service.
type GotenbergConverter struct {
	client *resty.Client
}

func NewGotenbergConverter(baseURL string, timeout time.Duration) *GotenbergConverter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &GotenbergConverter{client: client}
}

func (c *GotenbergConverter) Convert(ctx context.Context, html []byte) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("files", "index.html", bytes.NewReader(html)).
		SetFormData(map[string]string{
			"printBackground": "true",
		}).
		Post("/forms/chromium/convert/html")
	if err != nil {
		return nil, errutil.BadGateway("pdf converter unavailable", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, errutil.BadGateway("pdf conversion failed",
			fmt.Errorf("converter returned %d: %s", resp.StatusCode(), truncate(resp.Body(), 256)))
	}

	return resp.Body(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
