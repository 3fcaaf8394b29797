// Package outbound turns a saved message into something that can leave
// the app: a WhatsApp link, a mailto link, or the system clipboard.
package outbound

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/keepsakelab/giftbox/internal/keepsake"
)

// mailSubject is the fixed subject line for outgoing mail. The
// configured app title stays out of the message.
const mailSubject = "Messaggio"

// Kind identifies which channel a resolution picked.
type Kind string

const (
	// KindNone means the message had nothing to send.
	KindNone      Kind = "none"
	KindShare     Kind = "share"
	KindWhatsapp  Kind = "whatsapp"
	KindEmail     Kind = "email"
	KindClipboard Kind = "clipboard"
)

// Delivery is the outcome of resolving a message against the current
// settings. URL is empty for the clipboard channel.
type Delivery struct {
	Kind Kind   `json:"kind"`
	URL  string `json:"url,omitempty"`
	Text string `json:"text"`
}

// Format renders the sharing payload for a message, stamped with the
// day it is sent rather than the day it was written. A message with no
// text formats to the empty string.
func Format(m keepsake.Message) string {
	return formatAt(time.Now(), m)
}

func formatAt(now time.Time, m keepsake.Message) string {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return ""
	}
	from := strings.TrimSpace(m.From)
	if from == "" {
		from = "?"
	}
	return fmt.Sprintf("[%s] %s: %s", now.UTC().Format("2006-01-02"), from, text)
}

// WhatsappURL builds a wa.me link for the given phone number and text.
// Everything but digits is stripped from the number.
func WhatsappURL(phone, text string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return "https://wa.me/" + digits.String() + "?text=" + url.QueryEscape(text)
}

// MailtoURL builds a mailto link with the text as the body.
func MailtoURL(addr, subject, text string) string {
	q := url.Values{}
	q.Set("subject", subject)
	q.Set("body", text)
	return "mailto:" + addr + "?" + q.Encode()
}

// Resolver picks a delivery channel for a message based on the
// recipient settings. Channels are tried in a fixed order: a native
// share hook if one is installed, WhatsApp if a phone number is
// configured, email if an address is, and the clipboard as the last
// resort.
type Resolver struct {
	// share is the native share hook, nil unless installed.
	share func(string) error
	// copyText is swappable for tests; defaults to the system clipboard.
	copyText func(string) error
}

func NewResolver() *Resolver {
	return &Resolver{copyText: clipboard.WriteAll}
}

// SetShareHook installs a native share function tried before any other
// channel. Pass nil to remove it.
func (r *Resolver) SetShareHook(fn func(text string) error) {
	r.share = fn
}

// Resolve returns the delivery for m under the given settings. A
// message without text resolves to KindNone and touches no channel.
// The share hook and the clipboard fallback run immediately; a failing
// share hook falls through to the next channel, a failing clipboard is
// the only way Resolve errors.
func (r *Resolver) Resolve(s keepsake.Settings, m keepsake.Message) (Delivery, error) {
	text := Format(m)
	if text == "" {
		return Delivery{Kind: KindNone}, nil
	}
	if r.share != nil {
		if err := r.share(text); err == nil {
			return Delivery{Kind: KindShare, Text: text}, nil
		}
	}
	if phone := strings.TrimSpace(s.ToWhatsapp); phone != "" {
		return Delivery{Kind: KindWhatsapp, URL: WhatsappURL(phone, text), Text: text}, nil
	}
	if addr := strings.TrimSpace(s.ToEmail); addr != "" {
		return Delivery{Kind: KindEmail, URL: MailtoURL(addr, mailSubject, text), Text: text}, nil
	}
	if err := r.copyText(text); err != nil {
		return Delivery{}, fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return Delivery{Kind: KindClipboard, Text: text}, nil
}
