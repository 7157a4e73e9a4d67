package trial

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gnosis118/paper-n-print-sub004/pkg/pg"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const subscriptionColumns = `account_id, plan, is_trial, trial_status, trial_end_date, features,
	subscription_end, provider_subscription_id, created_at, updated_at`

const (
	selectSubscriptionSQL = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE account_id = $1`

	lockSubscriptionSQL = selectSubscriptionSQL + ` FOR UPDATE`

	insertSubscriptionSQL = `INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateSubscriptionSQL = `UPDATE subscriptions SET
		plan = $2, is_trial = $3, trial_status = $4, trial_end_date = $5, features = $6,
		subscription_end = $7, provider_subscription_id = $8, updated_at = $9
		WHERE account_id = $1`

	// The legacy 'active' value is matched so older rows expire too.
	expireTrialSQL = `UPDATE subscriptions
		SET trial_status = 'expired', updated_at = $2
		WHERE account_id = $1
		  AND is_trial
		  AND trial_status IN ('trialing', 'active')
		  AND trial_end_date < $2`

	staleTrialsSQL = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE is_trial
		  AND trial_status IN ('trialing', 'active')
		  AND trial_end_date < $1
		ORDER BY trial_end_date, account_id
		LIMIT $2`
)

// PostgresStore persists subscriptions in the subscriptions table.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, accountID string) (*Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, selectSubscriptionSQL, accountID))
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	_, err := s.db.Exec(ctx, insertSubscriptionSQL,
		sub.AccountID, string(sub.Plan), sub.IsTrial, string(sub.TrialStatus), sub.TrialEndDate,
		featureNames(sub.Features), sub.SubscriptionEnd, nullable(sub.ProviderSubscriptionID),
		sub.CreatedAt, sub.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrSubscriptionAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, accountID string, fn UpdateFunc) (*Subscription, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub, err := scanSubscription(tx.QueryRow(ctx, lockSubscriptionSQL, accountID))
	if pg.IsNotFoundError(err) {
		return nil, false, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock subscription: %w", err)
	}

	original := sub.Clone()
	changed, err := fn(sub)
	if err != nil {
		return original, false, err
	}
	if !changed {
		return sub, false, nil
	}

	if _, err := tx.Exec(ctx, updateSubscriptionSQL,
		sub.AccountID, string(sub.Plan), sub.IsTrial, string(sub.TrialStatus), sub.TrialEndDate,
		featureNames(sub.Features), sub.SubscriptionEnd, nullable(sub.ProviderSubscriptionID),
		sub.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("update subscription: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit subscription: %w", err)
	}
	return sub, true, nil
}

func (s *PostgresStore) ExpireTrial(ctx context.Context, accountID string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, expireTrialSQL, accountID, now)
	if err != nil {
		return false, fmt.Errorf("expire trial: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListStaleTrials(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	rows, err := s.db.Query(ctx, staleTrialsSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale trials: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale trial: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub        Subscription
		plan       string
		status     string
		features   []string
		providerID *string
	)
	if err := row.Scan(
		&sub.AccountID, &plan, &sub.IsTrial, &status, &sub.TrialEndDate, &features,
		&sub.SubscriptionEnd, &providerID, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p, err := plans.Parse(plan)
	if err != nil {
		return nil, err
	}
	state, err := ParseState(status)
	if err != nil {
		return nil, err
	}

	sub.Plan = p
	sub.TrialStatus = state
	if providerID != nil {
		sub.ProviderSubscriptionID = *providerID
	}
	sub.Features = make([]plans.Feature, 0, len(features))
	for _, f := range features {
		sub.Features = append(sub.Features, plans.Feature(f))
	}
	return &sub, nil
}

func featureNames(fs []plans.Feature) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, string(f))
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
