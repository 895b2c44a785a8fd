// Package telegram sends operator notices through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/velmie/admsrelay"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

var (
	// ErrTokenRequired indicates a missing bot token.
	ErrTokenRequired = errors.New("admsrelay telegram: bot token is required")
	// ErrChatIDRequired indicates a missing chat id.
	ErrChatIDRequired = errors.New("admsrelay telegram: chat id is required")
)

// Notifier posts HTML messages to one chat.
type Notifier struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
	limiter *rate.Limiter
}

var _ admsrelay.Notifier = (*Notifier)(nil)

// Option configures the Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at another Bot API host.
func WithBaseURL(base string) Option {
	return func(n *Notifier) {
		n.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithRateLimit caps outgoing messages. Telegram throttles bots that post to
// the same chat more than about once per second.
func WithRateLimit(every time.Duration, burst int) Option {
	return func(n *Notifier) {
		n.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// New constructs a Notifier for the given bot token and chat.
func New(token, chatID string, opts ...Option) (*Notifier, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}
	if chatID == "" {
		return nil, ErrChatIDRequired
	}

	n := &Notifier{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: defaultBaseURL,
		token:   token,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(n)
	}

	return n, nil
}

// Notify sends text with parse_mode=html. It waits for the rate limiter and
// gives up when ctx ends first.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("admsrelay telegram: rate limit: %w", err)
	}

	form := url.Values{
		"chat_id":    {n.chatID},
		"text":       {text},
		"parse_mode": {"html"},
	}
	endpoint := n.baseURL + "/bot" + n.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("admsrelay telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		// The URL embeds the token; keep it out of logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("admsrelay telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("admsrelay telegram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
