package notify

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Notifier delivers human-readable messages for observability. Delivery
// is best-effort and never affects trading control flow.
type Notifier interface {
	Notify(text string)
	Notifyf(format string, args ...interface{})
}

// Slack posts messages to an incoming-webhook URL. A Slack with an empty
// URL is a valid no-op notifier.
type Slack struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

func NewSlack(webhookURL string, logger *zap.Logger) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(zap.String("component", "slack")),
	}
}

func (s *Slack) Notify(text string) {
	if s == nil || s.webhookURL == "" {
		return
	}
	body, err := sonic.Marshal(map[string]string{"text": text})
	if err != nil {
		s.logger.Warn("slack payload marshal failed", zap.Error(err))
		return
	}
	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("slack delivery failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("slack delivery rejected", zap.Int("status", resp.StatusCode))
	}
}

func (s *Slack) Notifyf(format string, args ...interface{}) {
	s.Notify(fmt.Sprintf(format, args...))
}
