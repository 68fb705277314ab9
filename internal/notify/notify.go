// Package notify implements the best-effort Notifier collaborator
// (spec.md §6): mail via stdlib net/smtp, Slack and Mattermost via webhook
// POSTs, grounded on the teacher's HTTPCallbackObserver idiom.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/netauto/jobengine/internal/domain"
)

// Multiplexer routes Notify calls to the configured per-channel
// implementation. A nil sub-notifier for a channel makes that channel a
// no-op failure rather than a panic — callers only configure the channels
// they use.
type Multiplexer struct {
	Mail       *MailNotifier
	Slack      *WebhookNotifier
	Mattermost *WebhookNotifier
	logger     zerolog.Logger
}

func NewMultiplexer(mail *MailNotifier, slack, mattermost *WebhookNotifier, logger zerolog.Logger) *Multiplexer {
	return &Multiplexer{Mail: mail, Slack: slack, Mattermost: mattermost, logger: logger}
}

func (m *Multiplexer) Notify(ctx context.Context, channel domain.NotifyChannel, run *domain.Run, result domain.Result, recipients []string) error {
	switch channel {
	case domain.ChannelMail:
		if m.Mail == nil {
			return fmt.Errorf("notify: mail channel not configured")
		}
		return m.Mail.Notify(ctx, run, result, recipients)
	case domain.ChannelSlack:
		if m.Slack == nil {
			return fmt.Errorf("notify: slack channel not configured")
		}
		return m.Slack.Notify(ctx, run, result, recipients)
	case domain.ChannelMattermost:
		if m.Mattermost == nil {
			return fmt.Errorf("notify: mattermost channel not configured")
		}
		return m.Mattermost.Notify(ctx, run, result, recipients)
	default:
		return fmt.Errorf("notify: unknown channel %q", channel)
	}
}

// MailNotifier sends run-outcome mail via the standard library's net/smtp.
// No mail/SMTP library appears anywhere in the reviewed pack, so there is
// no ecosystem dependency to prefer over this stdlib path.
type MailNotifier struct {
	Addr string
	From string
	Auth smtp.Auth
}

func NewMailNotifier(addr, from string, auth smtp.Auth) *MailNotifier {
	return &MailNotifier{Addr: addr, From: from, Auth: auth}
}

func (n *MailNotifier) Notify(ctx context.Context, run *domain.Run, result domain.Result, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("mail notify: no recipients")
	}
	subject := "automation run"
	if run != nil && run.Job != nil {
		subject = run.Job.Name
	}
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Subject: %s\r\n\r\n%s\r\n", subject, body)
	return smtp.SendMail(n.Addr, n.Auth, n.From, recipients, []byte(msg))
}

// WebhookNotifier posts a run's outcome to an incoming webhook URL
// (Slack and Mattermost share this shape), grounded on the teacher's
// HTTPCallbackObserver: a bounded-timeout http.Client and a JSON body.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (n *WebhookNotifier) Notify(ctx context.Context, run *domain.Run, result domain.Result, recipients []string) error {
	jobName := "automation run"
	if run != nil && run.Job != nil {
		jobName = run.Job.Name
	}
	text := fmt.Sprintf("%s finished: success=%s", jobName, result.Success.String())
	if result.Error != "" {
		text += fmt.Sprintf(" error=%s", result.Error)
	}
	if len(recipients) > 0 {
		text += fmt.Sprintf(" cc=%s", strings.Join(recipients, ","))
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
