// Package email sends payment reminders to clients.
//
// The package is built around the EmailSender interface with two
// implementations:
//   - postmarkClient for production delivery with open and link tracking
//   - DevSender for local development (saves HTML and JSON files to disk)
//
// NewSender picks Postmark when both tokens are configured and DevSender
// otherwise. All senders validate parameters before sending.
//
// ReminderNotifier adapts an EmailSender to reminder.Notifier. It words the
// message according to the account's tone preference, renders the body with
// the templates subpackage and tags the message with the milestone and
// estimate ids.
//
//	sender, err := email.NewSender(cfg)
//	if err != nil {
//		return err
//	}
//	scheduler := reminder.NewScheduler(source, ledger, email.NewReminderNotifier(sender))
//
// # Error Handling
//
//   - ErrInvalidConfig: configuration validation failed
//   - ErrInvalidParams: email parameters validation failed
//   - ErrMissingRecipient: the reminder has no client address
//   - ErrFailedToSendEmail: delivery failed
package email
