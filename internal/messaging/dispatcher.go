package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/kanban-service/internal/config"
)

// Outbound is a message handed to the external transport.
type Outbound struct {
	TenantID      string `json:"tenant_id"`
	TicketID      string `json:"ticket_id"`
	ContactNumber string `json:"contact_number"`
	Body          string `json:"body"`
}

// Dispatcher sends outbound messages through the external transport. Delivery
// is best-effort from the engine's perspective.
type Dispatcher interface {
	Send(ctx context.Context, msg Outbound) error
}

// SignBody prefixes a message body with the agent signature, matching the
// format the chat frontend renders as a bold sender line.
func SignBody(agentName, body string) string {
	if strings.TrimSpace(agentName) == "" {
		return body
	}
	return fmt.Sprintf("*%s:*\n%s", agentName, body)
}

// webhookDispatcher posts messages to a configured transport endpoint. When no
// endpoint is configured it degrades to a logging stub so the engine keeps
// working in development.
type webhookDispatcher struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookDispatcher builds a Dispatcher from messaging config.
func NewWebhookDispatcher(cfg config.MessagingConfig, logger *zap.Logger) Dispatcher {
	return &webhookDispatcher{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: cfg.Timeout()},
		logger: logger,
	}
}

func (d *webhookDispatcher) Send(ctx context.Context, msg Outbound) error {
	if strings.TrimSpace(d.url) == "" {
		d.logger.Debug("messaging webhook not configured; dropping message",
			zap.String("ticket_id", msg.TicketID))
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return fmt.Errorf("messaging webhook returned %d", resp.StatusCode)
	}
	return nil
}
