package email

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gnosis118/paper-n-print-sub004/pkg/email/templates"
	"github.com/gnosis118/paper-n-print-sub004/pkg/reminder"
)

// ReminderNotifier renders payment reminders and sends them through an
// EmailSender. It implements reminder.Notifier.
type ReminderNotifier struct {
	sender  EmailSender
	printer *message.Printer
}

// NewReminderNotifier panics if sender is nil.
func NewReminderNotifier(sender EmailSender) *ReminderNotifier {
	if sender == nil {
		panic("email: sender is required")
	}
	return &ReminderNotifier{
		sender:  sender,
		printer: message.NewPrinter(language.English),
	}
}

func (n *ReminderNotifier) SendReminder(ctx context.Context, r reminder.Reminder) error {
	if r.ClientEmail == "" {
		return ErrMissingRecipient
	}

	html, err := templates.Render(ctx, templates.Reminder(n.reminderData(r)))
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}

	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   r.ClientEmail,
		Subject:  n.Subject(r),
		BodyHTML: html,
		Tag:      "payment-reminder-" + string(r.Tone),
		Metadata: map[string]string{
			"milestone_id": r.MilestoneID,
			"estimate_id":  r.EstimateID,
			"account_id":   r.AccountID,
			"days_overdue": strconv.Itoa(r.DaysOverdue),
		},
	})
}

// Subject returns the tone-specific subject line.
func (n *ReminderNotifier) Subject(r reminder.Reminder) string {
	job := r.JobType
	if job == "" {
		job = "your project"
	}
	amount := n.FormatAmount(r.AmountDue, r.Currency)

	switch r.Tone {
	case reminder.ToneFriendly:
		return fmt.Sprintf("Quick reminder: %s for %s", amount, job)
	case reminder.ToneFirm:
		if r.DaysOverdue > 0 {
			return fmt.Sprintf("Overdue: %s for %s", amount, job)
		}
		return fmt.Sprintf("Payment due: %s for %s", amount, job)
	default:
		return fmt.Sprintf("Payment reminder: %s for %s", amount, job)
	}
}

func (n *ReminderNotifier) reminderData(r reminder.Reminder) templates.ReminderData {
	name := r.ClientName
	if name == "" {
		name = "there"
	}
	amount := n.FormatAmount(r.AmountDue, r.Currency)
	due := r.DueDate.Format("January 2, 2006")

	d := templates.ReminderData{
		Amount:       amount,
		DueLine:      dueLine(r.DueDate, r.DaysOverdue),
		Description:  r.Description,
		PaymentLink:  r.PaymentLink,
		BusinessName: r.BusinessName,
		ButtonLabel:  "Pay now",
	}

	switch r.Tone {
	case reminder.ToneFriendly:
		d.Preheader = "Just a friendly heads-up about your upcoming payment."
		d.Greeting = "Hi " + name + ","
		d.Paragraphs = []string{
			fmt.Sprintf("Hope the %s is going well! This is a quick note that a payment of %s is coming up on %s.", jobOr(r.JobType), amount, due),
			"You can pay online in a minute using the button below. Thanks so much!",
		}
		d.Closing = "Cheers,"
	case reminder.ToneFirm:
		d.Preheader = "Payment required for your project."
		d.Greeting = "Dear " + name + ","
		if r.DaysOverdue > 0 {
			d.Paragraphs = []string{
				fmt.Sprintf("Our records show a payment of %s for the %s was due on %s and is now %d day(s) overdue.", amount, jobOr(r.JobType), due, r.DaysOverdue),
				"Please submit payment immediately to avoid delays to your project.",
			}
		} else {
			d.Paragraphs = []string{
				fmt.Sprintf("A payment of %s for the %s is due on %s.", amount, jobOr(r.JobType), due),
				"Please ensure payment is made by the due date to keep work on schedule.",
			}
		}
		d.ButtonLabel = "Pay now"
		d.Closing = "Regards,"
	default:
		d.Preheader = "Upcoming payment reminder."
		d.Greeting = "Hello " + name + ","
		d.Paragraphs = []string{
			fmt.Sprintf("This is a reminder that a payment of %s for the %s is due on %s.", amount, jobOr(r.JobType), due),
			"You can complete the payment securely using the link below.",
		}
		d.Closing = "Thank you,"
	}
	return d
}

// FormatAmount renders minor units with grouping, e.g. "USD 1,250.00".
func (n *ReminderNotifier) FormatAmount(minor int64, code string) string {
	unit, err := currency.ParseISO(code)
	label := code
	if err == nil {
		label = unit.String()
	}

	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return n.printer.Sprintf("%s %s%d.%02d", label, sign, minor/100, minor%100)
}

func dueLine(due time.Time, daysOverdue int) string {
	if daysOverdue > 0 {
		return fmt.Sprintf("Was due %s (%d day(s) overdue)", due.Format("Jan 2, 2006"), daysOverdue)
	}
	return "Due " + due.Format("Jan 2, 2006")
}

func jobOr(job string) string {
	if job == "" {
		return "project"
	}
	return job
}
