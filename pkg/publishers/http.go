package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/Adda-Baaj/coupon-harvester/pkg/httpclient"
	"github.com/go-resty/resty/v2"
)

const maxErrorBody = 512

// httpPublisher posts each event as JSON to a webhook. The event id travels as X-Event-ID so a
// receiver can drop redeliveries.
type httpPublisher struct {
	id     string
	cfg    HTTPPublisherConfig
	client *resty.Client
	log    logger.Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	hc := *cfg.HTTP
	if hc.Method == "" {
		hc.Method = httpDefaultMethod
	}
	if hc.TimeoutSeconds <= 0 {
		hc.TimeoutSeconds = httpDefaultTimeoutSeconds
	}

	client := httpclient.NewRestyHTTPClient(time.Duration(hc.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeaders(hc.Headers)
	return &httpPublisher{id: cfg.ID, cfg: hc, client: client, log: logger.Ensure(log)}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("X-Event-Type", evt.Type).
		SetHeader("X-Event-ID", evt.ID).
		SetBody(evt).
		Execute(h.cfg.Method, h.cfg.URL)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if resp.IsError() {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), strings.TrimSpace(string(body)))
	}

	h.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": h.id,
		"event_id":     evt.ID,
		"event_type":   evt.Type,
		"status":       resp.StatusCode(),
	})
	return nil
}
