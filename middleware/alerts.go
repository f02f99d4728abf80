package middleware

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"guildcloner/models"
)

const (
	defaultAlertCooldown = 10 * time.Minute
	alertSendTimeout     = 10 * time.Second
)

type SlackAlertConfig struct {
	WebhookURL  string
	Environment string
	AppName     string
}

// ErrorAlerter posts failed runs and recovered panics to a Slack webhook.
// Identical alerts are suppressed for the cooldown window.
type ErrorAlerter struct {
	config        SlackAlertConfig
	httpClient    *http.Client
	logger        zerolog.Logger
	alertedErrors map[string]time.Time // hash -> last alert time
	mutex         sync.Mutex
	alertCooldown time.Duration
	now           func() time.Time
}

func NewErrorAlerter(config SlackAlertConfig, httpClient *http.Client, logger zerolog.Logger) *ErrorAlerter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: alertSendTimeout}
	}
	return &ErrorAlerter{
		config:        config,
		httpClient:    httpClient,
		logger:        logger.With().Str("component", "alerts").Logger(),
		alertedErrors: make(map[string]time.Time),
		alertCooldown: defaultAlertCooldown,
		now:           time.Now,
	}
}

// OnRunFinished alerts on failed runs. Other terminal states are ignored.
func (m *ErrorAlerter) OnRunFinished(ctx context.Context, outcome models.RunOutcome) {
	if outcome.State != models.RunStateFailed {
		return
	}
	where := fmt.Sprintf("Clone run %s (%s -> %s)", outcome.RunID, outcome.Source.ID, outcome.Destination.ID)
	m.alertOnError(ctx, fmt.Sprintf("[%s] %s", outcome.ErrorKind, outcome.ErrorMessage), where, outcome.Destination.ID)
}

// HTTPMiddleware recovers handler panics, answers 500 and raises an alert.
func (m *ErrorAlerter) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				where := fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
				m.logger.Error().Interface("panic", rec).Str("context", where).Msg("Recovered from panic")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				m.alertOnError(r.Context(), fmt.Sprintf("PANIC - %v", rec), where+" (PANIC)", where)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *ErrorAlerter) alertOnError(ctx context.Context, errorMsg, where, dedupeKey string) {
	if m.config.WebhookURL == "" {
		return
	}

	// the run id differs every time, so dedupe on what failed rather than the full context
	hash := fmt.Sprintf("%x", md5.Sum([]byte(errorMsg+"|"+dedupeKey)))

	now := m.now()
	m.mutex.Lock()
	if lastAlert, exists := m.alertedErrors[hash]; exists && now.Sub(lastAlert) < m.alertCooldown {
		m.mutex.Unlock()
		m.logger.Debug().Str("context", where).Msg("Suppressing repeated alert")
		return
	}
	for key, lastAlert := range m.alertedErrors {
		if now.Sub(lastAlert) >= m.alertCooldown {
			delete(m.alertedErrors, key)
		}
	}
	m.alertedErrors[hash] = now
	m.mutex.Unlock()

	m.sendSlackAlert(ctx, errorMsg, where)
}

func (m *ErrorAlerter) sendSlackAlert(ctx context.Context, errorMsg, where string) {
	prefix := ""
	if m.config.Environment == "dev" {
		prefix = "[dev] "
	}

	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("🚨 %s[%s] Error Alert", prefix, m.config.AppName), true, false),
	)
	fields := slack.NewSectionBlock(nil, []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Service:* %s", m.config.AppName), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Environment:* %s", m.config.Environment), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Context:* %s", where), false, false),
	}, nil)
	body := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Error:*\n```%s```", errorMsg), false, false),
		nil, nil,
	)

	msg := &slack.WebhookMessage{
		Text:   fmt.Sprintf("%s: %s", where, errorMsg),
		Blocks: &slack.Blocks{BlockSet: []slack.Block{header, fields, body}},
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertSendTimeout)
	defer cancel()
	if err := slack.PostWebhookCustomHTTPContext(sendCtx, m.config.WebhookURL, m.httpClient, msg); err != nil {
		m.logger.Error().Err(err).Msg("Failed to send Slack alert")
	}
}
