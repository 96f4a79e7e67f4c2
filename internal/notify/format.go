package notify

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// BodyLimit is how much of a message body is quoted in an alert.
const BodyLimit = 3000

const truncationMarker = "\n\n... (message truncated)"

// Truncate caps s at limit runes, appending a truncation marker when
// anything was cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncationMarker
}

// MailAlert formats the notification for one matched email. All
// fields are escaped for Telegram HTML parse mode; the body is capped
// at BodyLimit with a visible marker.
func MailAlert(sender, subject, body string) string {
	var b strings.Builder
	b.WriteString("<b>📧 New Email Alert</b>\n\n")
	fmt.Fprintf(&b, "<b>From:</b> %s\n", html.EscapeString(sender))
	fmt.Fprintf(&b, "<b>Subject:</b> %s\n\n", html.EscapeString(subject))
	b.WriteString("<b>Content:</b>\n")
	b.WriteString(html.EscapeString(Clip(body, BodyLimit)))
	if len([]rune(body)) > BodyLimit {
		b.WriteString(truncationMarker)
	}
	return b.String()
}

// Clip returns the first limit runes of s with no marker.
func Clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// DeliveryFailure is the minimal fallback alert sent when the full
// alert could not be delivered.
func DeliveryFailure(sender, subject string) string {
	return fmt.Sprintf(
		"⚠️ Email delivery failed\nFrom: %s\nSubject: %s\nCheck logs for details.",
		html.EscapeString(sender),
		html.EscapeString(subject),
	)
}

// Startup is the one-time banner sent when monitoring begins.
func Startup(account string, interval time.Duration, senders []string, keepAlive bool) string {
	var b strings.Builder
	b.WriteString("🚀 <b>Email Monitor Started</b>\n\n")
	fmt.Fprintf(&b, "⏰ <b>Started at:</b> %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "📧 <b>Monitoring:</b> %s\n", html.EscapeString(account))
	fmt.Fprintf(&b, "🔍 <b>Check interval:</b> %s\n\n", interval)
	b.WriteString("<b>Monitored senders:</b>\n")
	for _, s := range senders {
		fmt.Fprintf(&b, "• %s\n", html.EscapeString(s))
	}
	b.WriteString("\n✅ <b>Status:</b> ready")
	if keepAlive {
		b.WriteString("\n🔄 <b>Keep-alive:</b> active")
	}
	return b.String()
}

// Shutdown is the notice sent when the process stops on interrupt.
func Shutdown() string {
	return fmt.Sprintf(
		"⏹️ <b>Email Monitor Stopped</b>\n\n⏰ <b>Stopped at:</b> %s\nNo new email notifications will be sent until the service is restarted.",
		time.Now().Format("2006-01-02 15:04:05"),
	)
}

// CycleError reports a recovered polling-loop failure.
func CycleError(cause string) string {
	return fmt.Sprintf(
		"⚠️ <b>Email Monitor Error</b>\n\n⏰ <b>Time:</b> %s\n🚫 <b>Error:</b> %s\n\nService will retry in 1 minute.",
		time.Now().Format("2006-01-02 15:04:05"),
		html.EscapeString(Clip(cause, 200)),
	)
}

// TestRun announces a single manual check.
func TestRun() string {
	return fmt.Sprintf(
		"🧪 <b>Email Monitor Test Run</b>\n\n⏰ <b>Time:</b> %s\nRunning single email check...",
		time.Now().Format("15:04:05"),
	)
}
