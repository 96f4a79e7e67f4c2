package decode

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/jaytaylor/html2text"

	_ "github.com/emersion/go-message/charset"
)

// Message is the normalized form of a fetched email.
type Message struct {
	Sender  string    // decoded From header, display form
	Subject string    // decoded Subject header
	Body    string    // plain text body
	Date    time.Time // zero if the Date header is absent or unparseable
}

// Decoder converts raw RFC 5322 bytes into normalized messages.
type Decoder struct {
	logger *slog.Logger
}

// New creates a Decoder.
func New(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Parse decodes one raw message. Plain-text parts are preferred; a
// message with only HTML content is stripped down to text. Attachment
// parts are skipped. Header and per-part decoding problems degrade to
// empty content rather than failing the message; only a message whose
// envelope cannot be parsed at all yields an error.
func (d *Decoder) Parse(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	msg := &Message{
		Sender:  d.sender(&mr.Header),
		Subject: d.subject(&mr.Header),
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	} else {
		d.logger.Debug("unparseable date header", "error", err)
	}

	var plain strings.Builder
	var firstHTML string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// One broken part must not lose the rest of the message.
			d.logger.Warn("skipping undecodable part", "error", err)
			continue
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			// Attachments are never part of the notification body.
			continue
		}

		ctype, _, err := header.ContentType()
		if err != nil {
			d.logger.Warn("bad part content type", "error", err)
			continue
		}

		switch ctype {
		case "text/plain":
			body, err := io.ReadAll(part.Body)
			if err != nil {
				d.logger.Warn("error reading plain text part", "error", err)
				continue
			}
			plain.Write(body)
		case "text/html":
			if firstHTML != "" {
				continue
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				d.logger.Warn("error reading html part", "error", err)
				continue
			}
			firstHTML = string(body)
		}
	}

	msg.Body = strings.TrimSpace(plain.String())
	if msg.Body == "" && firstHTML != "" {
		text, err := html2text.FromString(firstHTML, html2text.Options{OmitLinks: true})
		if err != nil {
			d.logger.Warn("error converting html to text", "error", err)
		} else {
			msg.Body = strings.TrimSpace(text)
		}
	}
	return msg, nil
}

func (d *Decoder) sender(h *mail.Header) string {
	addrs, err := h.AddressList("From")
	if err == nil && len(addrs) > 0 {
		a := addrs[0]
		if a.Name != "" {
			return a.Name + " <" + a.Address + ">"
		}
		return a.Address
	}
	// Fall back to the raw header, decoded best-effort.
	from, err := h.Text("From")
	if err != nil {
		d.logger.Debug("undecodable from header", "error", err)
	}
	return strings.TrimSpace(from)
}

func (d *Decoder) subject(h *mail.Header) string {
	subject, err := h.Subject()
	if err != nil {
		// Keep whatever decoded, dropping the undecodable tail.
		d.logger.Debug("undecodable subject header", "error", err)
	}
	return strings.TrimSpace(subject)
}
