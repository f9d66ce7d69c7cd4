// Package httpgw implements the gateway transport over an HTTP bridge.
//
// Outbound commands are POSTed to the bridge; inbound gateway messages
// arrive on a webhook the bridge calls back.
package httpgw

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/iqrfcloud/gwcmd/gw"
	gwcmdhttp "github.com/iqrfcloud/gwcmd/http"
	"github.com/iqrfcloud/gwcmd/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Publisher POSTs raw command payloads to an HTTP gateway bridge.
type Publisher struct {
	url    string
	apiKey string
	client *http.Client
	logger log.Logger
}

type Option func(*Publisher)

func WithLogger(logger log.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClient sets a custom HTTP client. Defaults to the default client.
func WithClient(client *http.Client) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithAPIKey sends key in an X-Api-Key header with each request.
func WithAPIKey(key string) Option {
	return func(p *Publisher) {
		p.apiKey = key
	}
}

func NewPublisher(url string, opts ...Option) *Publisher {
	p := &Publisher{
		url:    url,
		client: http.DefaultClient,
		logger: log.NopLogger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements the gateway publisher interface method.
func (p *Publisher) Publish(ctx context.Context, rawCmd []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(rawCmd))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting command: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway bridge status: %s", resp.Status)
	}
	return nil
}

// WebhookHandler accepts inbound gateway messages POSTed by the bridge
// and hands them to recv. The body is passed through as-is; parse
// failures are recv's to log and drop.
func WebhookHandler(recv gw.ResponseReceiver, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		raw, err := gwcmdhttp.ReadAllAndReplaceBody(r)
		if err != nil {
			logger.Info(
				logkeys.Message, "reading webhook body",
				logkeys.Error, err,
			)
			http.Error(w, "reading body", http.StatusInternalServerError)
			return
		}
		if err = recv.GatewayResponseEvent(r.Context(), raw); err != nil {
			logger.Info(
				logkeys.Message, "receiving gateway response",
				logkeys.Error, err,
			)
			http.Error(w, "processing response", http.StatusInternalServerError)
			return
		}
	}
}
