package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mailwatch/internal/decode"
	"mailwatch/internal/mailbox"
	"mailwatch/internal/notify"
	"mailwatch/internal/state"
)

// lookback bounds the unread search so old mail never becomes a
// notification candidate.
const lookback = 24 * time.Hour

// Notifier delivers one text payload, reporting success.
type Notifier interface {
	Deliver(ctx context.Context, text string) bool
}

// Engine decides, for each unread message, whether it is new, whether
// it matches a monitored sender, and whether a notification goes out,
// then records the outcome so a later cycle (or a restarted process)
// never notifies twice for the same message.
type Engine struct {
	mailbox   mailbox.Mailbox
	decoder   *decode.Decoder
	notifier  Notifier
	store     *state.Store
	senders   []string
	startTime time.Time
	logger    *slog.Logger
}

// New creates an Engine. senders entries are matched as
// case-insensitive substrings of the normalized sender address.
func New(mb mailbox.Mailbox, dec *decode.Decoder, n Notifier, store *state.Store, senders []string, logger *slog.Logger) *Engine {
	normalized := make([]string, 0, len(senders))
	for _, s := range senders {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			normalized = append(normalized, s)
		}
	}
	return &Engine{
		mailbox:   mb,
		decoder:   dec,
		notifier:  n,
		store:     store,
		senders:   normalized,
		startTime: time.Now(),
		logger:    logger,
	}
}

// RunCycle performs one poll-fetch-filter-notify-persist pass and
// returns how many notifications were delivered. A connection or
// search failure skips the whole cycle without touching state; a
// failure on a single message skips only that message.
func (e *Engine) RunCycle(ctx context.Context) int {
	sess, err := e.mailbox.Connect(ctx)
	if err != nil {
		e.logger.Error("mailbox connect failed", "error", err)
		return 0
	}
	defer sess.Close()

	ids, err := sess.SearchUnread(time.Now().Add(-lookback))
	if err != nil {
		e.logger.Error("unread search failed", "error", err)
		return 0
	}
	e.logger.Info("unread messages in range", "count", len(ids))

	delivered := 0
	for _, id := range ids {
		if e.store.Has(id) {
			continue
		}

		raw, err := sess.Fetch(id)
		if err != nil {
			// Not recorded, so the next cycle retries it.
			e.logger.Error("fetch failed", "msg_id", id, "error", err)
			continue
		}

		msg, err := e.decoder.Parse(raw)
		if err != nil {
			e.logger.Error("decode failed", "msg_id", id, "error", err)
			continue
		}

		if !msg.Date.IsZero() && msg.Date.Before(e.startTime) {
			// Backlog from before this process started.
			e.store.Add(id)
			continue
		}

		addr := NormalizeSender(msg.Sender)
		if !e.matches(addr) {
			e.store.Add(id)
			continue
		}

		e.logger.Info("processing email", "from", addr, "subject", msg.Subject)

		if e.notifier.Deliver(ctx, notify.MailAlert(msg.Sender, msg.Subject, msg.Body)) {
			if err := sess.MarkRead(id); err != nil {
				e.logger.Error("mark read failed", "msg_id", id, "error", err)
			}
			e.store.Add(id)
			delivered++
			e.logger.Info("email delivered and marked read", "msg_id", id)
		} else {
			if ctx.Err() != nil {
				// Shutdown, not a send failure: the message was never
				// really attempted. Leave it unrecorded so the next
				// process delivers it.
				e.logger.Warn("delivery interrupted, deferring to next run", "msg_id", id)
				break
			}
			// Recorded anyway so a failing message cannot retry
			// forever; left unread so it stays visible in the mailbox.
			e.store.Add(id)
			e.logger.Warn("delivery failed, suppressing further attempts",
				"msg_id", id, "subject", msg.Subject)
			if e.notifier.Deliver(ctx, notify.DeliveryFailure(msg.Sender, msg.Subject)) {
				e.logger.Info("sent fallback failure notification", "msg_id", id)
			}
		}
	}

	if err := e.store.Flush(); err != nil {
		e.logger.Error("state persist failed", "error", err)
	}
	if delivered > 0 {
		e.logger.Info("cycle complete", "delivered", delivered)
	}
	return delivered
}

// Initialize records every currently unread message as processed, with
// no date or sender filtering, so a fresh deployment does not flood
// the chat with notifications for pre-existing inbox content.
func (e *Engine) Initialize(ctx context.Context) error {
	sess, err := e.mailbox.Connect(ctx)
	if err != nil {
		return fmt.Errorf("mailbox connect: %w", err)
	}
	defer sess.Close()

	ids, err := sess.SearchUnread(time.Time{})
	if err != nil {
		return fmt.Errorf("unread search: %w", err)
	}
	for _, id := range ids {
		e.store.Add(id)
	}
	if err := e.store.Flush(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	e.logger.Info("baseline established", "marked", len(ids))
	return nil
}

// NormalizeSender reduces a From header to a bare lower-case address:
// "Noreply <noreply@mysite.com>" becomes "noreply@mysite.com".
func NormalizeSender(sender string) string {
	if i := strings.LastIndex(sender, "<"); i >= 0 {
		sender = sender[i+1:]
		if j := strings.Index(sender, ">"); j >= 0 {
			sender = sender[:j]
		}
	}
	return strings.ToLower(strings.TrimSpace(sender))
}

// matches implements the deliberately loose monitoring policy:
// a sender matches when any configured entry is a substring of the
// normalized address, so "example.com" also matches subdomains.
func (e *Engine) matches(addr string) bool {
	for _, m := range e.senders {
		if strings.Contains(addr, m) {
			return true
		}
	}
	return false
}
