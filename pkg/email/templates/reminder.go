package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// ReminderData holds the already worded copy of a payment reminder.
type ReminderData struct {
	Preheader    string
	Greeting     string
	Paragraphs   []string
	Amount       string
	DueLine      string
	Description  string
	ButtonLabel  string
	PaymentLink  string
	Closing      string
	BusinessName string
}

// Reminder is the payment reminder email body. All text is escaped and the
// payment link is passed through templ.URL, which neutralises unsafe schemes.
func Reminder(d ReminderData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		e := templ.EscapeString[string]

		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"></head>`)
		b.WriteString(`<body style="margin:0;padding:0;background:#f4f5f7;font-family:Helvetica,Arial,sans-serif;color:#1f2933;">`)
		if d.Preheader != "" {
			b.WriteString(`<div style="display:none;max-height:0;overflow:hidden;">` + e(d.Preheader) + `</div>`)
		}
		b.WriteString(`<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center" style="padding:32px 16px;">`)
		b.WriteString(`<table role="presentation" width="560" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;padding:32px;">`)

		b.WriteString(`<tr><td><p style="font-size:16px;margin:0 0 16px;">` + e(d.Greeting) + `</p>`)
		for _, p := range d.Paragraphs {
			b.WriteString(`<p style="font-size:15px;line-height:1.5;margin:0 0 16px;">` + e(p) + `</p>`)
		}

		b.WriteString(`<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background:#f8fafc;border-radius:6px;margin:8px 0 24px;"><tr><td style="padding:16px;">`)
		b.WriteString(`<p style="font-size:24px;font-weight:bold;margin:0;">` + e(d.Amount) + `</p>`)
		b.WriteString(`<p style="font-size:14px;color:#52606d;margin:4px 0 0;">` + e(d.DueLine) + `</p>`)
		if d.Description != "" {
			b.WriteString(`<p style="font-size:14px;color:#52606d;margin:4px 0 0;">` + e(d.Description) + `</p>`)
		}
		b.WriteString(`</td></tr></table>`)

		if d.PaymentLink != "" {
			href := string(templ.URL(d.PaymentLink))
			b.WriteString(`<p style="margin:0 0 24px;"><a href="` + e(href) + `" style="display:inline-block;background:#2563eb;color:#ffffff;text-decoration:none;padding:12px 24px;border-radius:6px;font-weight:bold;">` + e(d.ButtonLabel) + `</a></p>`)
		}

		b.WriteString(`<p style="font-size:15px;margin:0;">` + e(d.Closing) + `<br>` + e(d.BusinessName) + `</p>`)
		b.WriteString(`</td></tr></table></td></tr></table></body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}
