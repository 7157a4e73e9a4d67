package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by the Postgres source and ledger.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// dueMilestonesSQL left-joins so that missing estimates and preferences reach
// the scheduler, which counts them as skips instead of dropping them silently.
const dueMilestonesSQL = `
SELECT m.id, m.estimate_id, m.amount_due, m.currency, m.due_date, m.description, m.status,
       e.id, e.account_id, e.client_name, e.client_email, e.job_type, e.business_name,
       p.account_id, p.tone, p.auto_send, p.schedule_days
FROM milestone_payments m
LEFT JOIN estimates e ON e.id = m.estimate_id
LEFT JOIN reminder_preferences p ON p.account_id = e.account_id
WHERE m.status = 'pending'
  AND m.due_date BETWEEN $1 AND $2
ORDER BY m.due_date, m.id`

const (
	claimDispatchSQL = `INSERT INTO reminder_dispatches (milestone_id, dispatch_date, status, created_at)
		VALUES ($1, $2, 'claimed', now())
		ON CONFLICT (milestone_id, dispatch_date) DO NOTHING`

	markSentSQL = `UPDATE reminder_dispatches SET status = 'sent', sent_at = now()
		WHERE milestone_id = $1 AND dispatch_date = $2`

	releaseClaimSQL = `DELETE FROM reminder_dispatches
		WHERE milestone_id = $1 AND dispatch_date = $2 AND status = 'claimed'`
)

// PostgresSource reads candidates from milestone_payments, estimates and
// reminder_preferences.
type PostgresSource struct {
	db DB
}

func NewPostgresSource(db DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) DueMilestones(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	rows, err := s.db.Query(ctx, dueMilestonesSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("query due milestones: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due milestone: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due milestones: %w", err)
	}
	return out, nil
}

func scanCandidate(row pgx.Row) (Candidate, error) {
	var (
		c           Candidate
		status      string
		description *string
		estimateID  *string
		accountID   *string
		clientName  *string
		clientEmail *string
		jobType     *string
		business    *string
		prefAccount *string
		tone        *string
		autoSend    *bool
		days        []int32
	)
	if err := row.Scan(
		&c.Milestone.ID, &c.Milestone.EstimateID, &c.Milestone.AmountDue, &c.Milestone.Currency,
		&c.Milestone.DueDate, &description, &status,
		&estimateID, &accountID, &clientName, &clientEmail, &jobType, &business,
		&prefAccount, &tone, &autoSend, &days,
	); err != nil {
		return Candidate{}, err
	}
	c.Milestone.Status = MilestoneStatus(status)
	c.Milestone.Description = deref(description)

	if estimateID != nil {
		c.Estimate = &Estimate{
			ID:           *estimateID,
			AccountID:    deref(accountID),
			ClientName:   deref(clientName),
			ClientEmail:  deref(clientEmail),
			JobType:      deref(jobType),
			BusinessName: deref(business),
		}
	}

	if prefAccount != nil {
		// An unknown tone is kept as stored; the scheduler skips that candidate
		// instead of failing the listing.
		t, err := ParseTone(deref(tone))
		if err != nil {
			t = Tone(deref(tone))
		}
		p := &Preference{
			AccountID: *prefAccount,
			Tone:      t,
			AutoSend:  autoSend != nil && *autoSend,
		}
		for _, d := range days {
			p.ScheduleDays = append(p.ScheduleDays, int(d))
		}
		c.Preference = p
	}
	return c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PostgresLedger stores dispatches in reminder_dispatches, whose primary key
// (milestone_id, dispatch_date) enforces one reminder per milestone per day.
type PostgresLedger struct {
	db DB
}

func NewPostgresLedger(db DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Claim(ctx context.Context, milestoneID string, day time.Time) (bool, error) {
	tag, err := l.db.Exec(ctx, claimDispatchSQL, milestoneID, DayOf(day))
	if err != nil {
		return false, fmt.Errorf("claim reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *PostgresLedger) MarkSent(ctx context.Context, milestoneID string, day time.Time) error {
	tag, err := l.db.Exec(ctx, markSentSQL, milestoneID, DayOf(day))
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimNotFound
	}
	return nil
}

func (l *PostgresLedger) Release(ctx context.Context, milestoneID string, day time.Time) error {
	if _, err := l.db.Exec(ctx, releaseClaimSQL, milestoneID, DayOf(day)); err != nil {
		return fmt.Errorf("release reminder claim: %w", err)
	}
	return nil
}
