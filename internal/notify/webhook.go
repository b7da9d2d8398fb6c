package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	channelWebhook = "discord"

	embedColor  = 0x6366f1
	embedFooter = "TReminder"

	// Remote error bodies beyond this size are truncated.
	maxErrorBody = 64 << 10
)

// WebhookConfig tunes the retry behavior of the webhook channel.
type WebhookConfig struct {
	// MaxAttempts is the total number of POSTs per delivery (>= 1).
	MaxAttempts int
	// BaseDelay seeds the exponential wait after an HTTP 429 without a hint.
	BaseDelay time.Duration
	// FailureBackoff is the fixed wait after any other failed attempt.
	FailureBackoff time.Duration
	// MaxDelay caps any single wait, including server hints. Zero disables the cap.
	MaxDelay time.Duration
	// AttemptTimeout bounds each POST. Zero disables the bound.
	AttemptTimeout time.Duration
	// RatePerSec paces outbound POSTs across deliveries. Zero disables pacing.
	RatePerSec float64
}

// DefaultWebhookConfig returns the settings used when none are configured.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		FailureBackoff: time.Second,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// Webhook posts reminders as embeds to a chat webhook URL, retrying rate
// limits and transient failures within a fixed attempt budget.
type Webhook struct {
	cfg     WebhookConfig
	client  *http.Client
	limiter *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewWebhook builds a webhook channel. A nil client uses http.DefaultClient.
func NewWebhook(cfg WebhookConfig, client *http.Client) *Webhook {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if client == nil {
		client = http.DefaultClient
	}
	w := &Webhook{
		cfg:    cfg,
		client: client,
		sleep:  sleepCtx,
		now:    time.Now,
	}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return w
}

type embedFooterJSON struct {
	Text string `json:"text"`
}

type embedJSON struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Color       int             `json:"color"`
	Timestamp   string          `json:"timestamp"`
	Footer      embedFooterJSON `json:"footer"`
}

type webhookPayload struct {
	Embeds []embedJSON `json:"embeds"`
}

// Discord reports rate limits and errors with this body shape.
type webhookErrorBody struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

// attemptResult is the outcome of a single POST.
type attemptResult struct {
	status     int
	message    string
	retryAfter time.Duration
	err        error
}

func (r attemptResult) ok() bool {
	return r.err == nil && r.status >= 200 && r.status < 300
}

// Deliver posts an embed titled "Reminder: <title>" to target.
func (w *Webhook) Deliver(ctx context.Context, target, title, message string) error {
	if strings.TrimSpace(target) == "" {
		return &DeliveryError{Channel: channelWebhook, Message: "webhook url is empty", Err: ErrNotConfigured}
	}

	body, err := json.Marshal(webhookPayload{Embeds: []embedJSON{{
		Title:       "Reminder: " + title,
		Description: message,
		Color:       embedColor,
		Timestamp:   w.now().UTC().Format(time.RFC3339),
		Footer:      embedFooterJSON{Text: embedFooter},
	}}})
	if err != nil {
		return &DeliveryError{Channel: channelWebhook, Err: err}
	}

	var last attemptResult
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return w.failure(last, err)
			}
		}

		last = w.post(ctx, target, body)
		if last.ok() {
			return nil
		}

		log.Debug().
			Str("channel", channelWebhook).
			Int("attempt", attempt).
			Int("max_attempts", w.cfg.MaxAttempts).
			Int("status", last.status).
			AnErr("err", last.err).
			Msg("webhook attempt failed")

		if attempt >= w.cfg.MaxAttempts {
			break
		}
		if err := w.sleep(ctx, w.delayFor(last, attempt)); err != nil {
			return w.failure(last, err)
		}
	}
	return w.failure(last, nil)
}

// delayFor returns the wait before the attempt following a failed one.
func (w *Webhook) delayFor(r attemptResult, attempt int) time.Duration {
	if r.status != http.StatusTooManyRequests {
		return w.cfg.FailureBackoff
	}
	if r.retryAfter > 0 {
		return w.capDelay(r.retryAfter)
	}
	return w.backoff(attempt)
}

// backoff returns BaseDelay * 2^(attempt-1), capped by MaxDelay.
func (w *Webhook) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := w.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if w.cfg.MaxDelay > 0 && d >= w.cfg.MaxDelay {
			return w.cfg.MaxDelay
		}
	}
	return w.capDelay(d)
}

func (w *Webhook) capDelay(d time.Duration) time.Duration {
	if w.cfg.MaxDelay > 0 && d > w.cfg.MaxDelay {
		return w.cfg.MaxDelay
	}
	return d
}

func (w *Webhook) post(ctx context.Context, target string, body []byte) attemptResult {
	callCtx := ctx
	if w.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.cfg.AttemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return attemptResult{err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return attemptResult{err: err}
	}
	defer resp.Body.Close()

	res := attemptResult{status: resp.StatusCode}
	if res.ok() {
		_, _ = io.Copy(io.Discard, resp.Body)
		return res
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb webhookErrorBody
	if json.Unmarshal(raw, &eb) == nil {
		res.message = eb.Message
		res.retryAfter = secondsToDuration(eb.RetryAfter)
	} else {
		res.message = strings.TrimSpace(string(raw))
	}
	if hint := parseRetryAfter(resp.Header.Get("Retry-After")); hint > 0 {
		res.retryAfter = hint
	}
	if res.message == "" {
		res.message = http.StatusText(resp.StatusCode)
	}
	return res
}

// failure converts the last attempt into a *DeliveryError. A non-nil cause
// (e.g. context cancellation) takes precedence as the wrapped error.
func (w *Webhook) failure(last attemptResult, cause error) error {
	de := &DeliveryError{
		Channel:   channelWebhook,
		Status:    last.status,
		Message:   last.message,
		Err:       last.err,
		Transient: last.status == 0 || last.status == http.StatusTooManyRequests || last.status >= 500,
	}
	if cause != nil {
		de.Err = cause
	}
	if de.Err == nil && de.Message == "" {
		de.Err = errors.New("no attempt completed")
	}
	return de
}

// parseRetryAfter reads a Retry-After header given in (possibly fractional)
// seconds. HTTP-date values are ignored.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return secondsToDuration(f)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
