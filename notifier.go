package admsrelay

import (
	"context"
	"fmt"
	"html"
	"time"
)

const notifyTimeout = 30 * time.Second

// Notifier pushes human-readable notices to an operator channel.
// Delivery of notices is best effort and never affects webhook delivery.
type Notifier interface {
	// Notify sends an HTML-formatted message.
	Notify(ctx context.Context, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, text string) error

// Notify implements Notifier.
func (fn NotifierFunc) Notify(ctx context.Context, text string) error {
	return fn(ctx, text)
}

// NopNotifier discards notices.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string) error { return nil }

// FormatNotice renders a bold title followed by a preformatted body.
func FormatNotice(title, body string) string {
	return fmt.Sprintf("<b>%s</b>\n\n<pre>%s</pre>", html.EscapeString(title), html.EscapeString(body))
}

// notify emits a notice and swallows any failure after logging it.
func notify(ctx context.Context, notifier Notifier, logger Logger, text string) {
	if _, ok := notifier.(NopNotifier); ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := notifier.Notify(ctx, text); err != nil {
		logger.Warn("admsrelay notify failed", "err", err)
	}
}
