package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

const (
	// maxMessageLen is the transport payload budget. Telegram caps
	// messages at 4096 characters; stay under it so the truncation
	// marker always fits.
	maxMessageLen = 4000

	defaultAttempts = 3
	defaultBackoff  = 5 * time.Second
	requestTimeout  = 30 * time.Second
)

// Notifier delivers text payloads to one Telegram chat. Delivery is
// best-effort: failures are logged and reported as a boolean, never as
// an error to the caller.
type Notifier struct {
	bot      *tele.Bot
	chatID   int64
	logger   *slog.Logger
	limiter  *rate.Limiter
	attempts int
	backoff  time.Duration
}

// New creates a Notifier for the given bot token and chat.
func New(token string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	return newNotifier(token, "", chatID, logger)
}

func newNotifier(token, apiURL string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     apiURL,
		Offline: true,
		Client:  &http.Client{Timeout: requestTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Notifier{
		bot:      bot,
		chatID:   chatID,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}, nil
}

// Deliver sends text to the configured chat with HTML parse mode,
// truncated to the transport budget. It retries transient failures
// (API errors, network errors, timeouts) up to three times with a
// fixed backoff and reports whether any attempt succeeded.
func (n *Notifier) Deliver(ctx context.Context, text string) bool {
	text = Truncate(text, maxMessageLen)

	for attempt := 1; attempt <= n.attempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			n.logger.Warn("delivery cancelled", "error", err)
			return false
		}

		_, err := n.bot.Send(tele.ChatID(n.chatID), text, &tele.SendOptions{
			ParseMode: tele.ModeHTML,
		})
		if err == nil {
			n.logger.Debug("message delivered", "attempt", attempt)
			return true
		}

		n.logger.Error("telegram send failed",
			"attempt", attempt,
			"max_attempts", n.attempts,
			"error", err,
		)
		if attempt < n.attempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(n.backoff):
			}
		}
	}
	return false
}

// Preflight checks reachability of the Telegram API so connectivity
// problems surface in the logs before the first poll cycle.
func (n *Notifier) Preflight(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.bot.URL, nil)
	if err != nil {
		return false
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		n.logger.Warn("telegram api unreachable", "error", err)
		return false
	}
	resp.Body.Close()
	n.logger.Info("telegram api reachable")
	return true
}
