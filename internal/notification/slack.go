package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/smallbiznis/payoutd/internal/observability/tracing"
)

// SlackWebhook posts to an incoming webhook URL.
type SlackWebhook struct {
	url     string
	channel string
	client  *http.Client
}

func NewSlackWebhook(url, channel string, client *http.Client) *SlackWebhook {
	return &SlackWebhook{
		url:     url,
		channel: channel,
		client:  tracing.WrapHTTPClient(client, "slack"),
	}
}

func (s *SlackWebhook) Name() string { return "slack" }

func (s *SlackWebhook) Send(ctx context.Context, msg Message) error {
	return s.PostMessage(ctx, s.channel, "*"+msg.Subject+"*\n"+msg.Text)
}

func (s *SlackWebhook) PostMessage(ctx context.Context, channelID string, message string) error {
	payload := map[string]string{"text": message}
	if channelID != "" {
		payload["channel"] = channelID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook: status %d", resp.StatusCode)
	}
	return nil
}
