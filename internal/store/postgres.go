package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bondify/bondify/internal/domain"
)

const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"

	holdingsUnitsCheck = "holdings_units_check"
	bondsSubscribedChk = "bonds_subscribed_check"
)

// PostgresOptions bounds lock waits and retries of contended transactions.
type PostgresOptions struct {
	LockTimeout time.Duration
	MaxRetries  int
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists the ledger in PostgreSQL. Rows touched by a ledger
// operation are locked with SELECT ... FOR UPDATE for the transaction's lifetime.
type Postgres struct {
	pgReader
	db   *pgxpool.Pool
	opts PostgresOptions
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool, opts PostgresOptions) *Postgres {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Postgres{pgReader: pgReader{q: db}, db: db, opts: opts}
}

// WithTx runs fn in a transaction, retrying contended attempts up to MaxRetries.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := p.runTx(ctx, fn)
		if err == nil || !errors.Is(err, domain.ErrContention) || attempt >= p.opts.MaxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrContention, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
}

func (p *Postgres) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return translate(err, "begin transaction")
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	timeout := fmt.Sprintf("%dms", p.opts.LockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return translate(err, "set lock timeout")
	}

	if err := fn(&pgTx{pgReader: pgReader{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err, "commit")
	}
	return nil
}

// translate maps driver errors onto the domain taxonomy while keeping the
// original error in the chain.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected, pgQueryCanceled:
			return fmt.Errorf("%s: %w: %w", what, domain.ErrContention, err)
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %w", what, domain.ErrDuplicateSubmission, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", what, domain.ErrNotFound, err)
		case pgCheckViolation:
			switch pgErr.ConstraintName {
			case holdingsUnitsCheck:
				return fmt.Errorf("%s: %w: %w", what, domain.ErrInsufficientHolding, err)
			case bondsSubscribedChk:
				return fmt.Errorf("%s: %w: %w", what, domain.ErrBondFullySubscribed, err)
			default:
				return fmt.Errorf("%s: %w: %w", what, domain.ErrInvalidArgument, err)
			}
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

type scanner interface {
	Scan(dest ...any) error
}

type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends a clause whose single placeholder is written as %d.
func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) addRaw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) page(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		w.args = append(w.args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(w.args))
	}
	if offset > 0 {
		w.args = append(w.args, offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(w.args))
	}
	return sb.String()
}

const (
	userColumns = `id, name, national_id, wallet_address, salt, email, date_of_birth,
		password_hash, role, hashed_mnemonic, created_at, kyc_status`
	verificationColumns = `id, user_id, national_id_hash, date_of_birth, age, custodial_address,
		tx_digest, status, reason, request_id, created_at, updated_at`
	bondColumns = `id, bond_object_id, bond_name, bond_type, bond_symbol, organization_name,
		face_value, tl_unit_offered, tl_unit_subscribed, maturity, status, interest_rate::text,
		purpose, market, created_at, subscription_period, subscription_end_date, matured_at`
	subscriptionColumns = `id, bond_id, user_id, wallet_address, committed_amount, tx_hash,
		subscription_amt, created_at`
	transactionColumns = `id, bond_id, user_from, user_to, units, tx_hash, created_at`
	eventColumns       = `id, type, bond_id, user_id, details, tx_hash, created_at`
)

func scanUser(row scanner) (domain.User, error) {
	var (
		u         domain.User
		role      string
		kycStatus string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.NationalID, &u.WalletAddress, &u.Salt, &u.Email, &u.DateOfBirth,
		&u.PasswordHash, &role, &u.HashedMnemonic, &u.CreatedAt, &kycStatus); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.KYCStatus = domain.KYCStatus(kycStatus)
	u.CreatedAt = u.CreatedAt.UTC()
	if u.DateOfBirth != nil {
		dob := u.DateOfBirth.UTC()
		u.DateOfBirth = &dob
	}
	return u, nil
}

func scanVerification(row scanner) (domain.EKYCVerification, error) {
	var (
		v      domain.EKYCVerification
		status string
	)
	if err := row.Scan(&v.ID, &v.UserID, &v.NationalIDHash, &v.DateOfBirth, &v.Age, &v.CustodialAddress,
		&v.TxDigest, &status, &v.Reason, &v.RequestID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return domain.EKYCVerification{}, err
	}
	v.Status = domain.KYCStatus(status)
	v.DateOfBirth = v.DateOfBirth.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return v, nil
}

func scanBond(row scanner) (domain.Bond, error) {
	var (
		b        domain.Bond
		bondType string
		status   string
		rate     string
		market   *string
	)
	if err := row.Scan(&b.ID, &b.BondObjectID, &b.BondName, &bondType, &b.BondSymbol, &b.OrganizationName,
		&b.FaceValue, &b.TLUnitOffered, &b.TLUnitSubscribed, &b.Maturity, &status, &rate,
		&b.Purpose, &market, &b.CreatedAt, &b.SubscriptionPeriod, &b.SubscriptionEndDate, &b.MaturedAt); err != nil {
		return domain.Bond{}, err
	}
	interest, err := decimal.NewFromString(rate)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("parse interest rate %q: %w", rate, err)
	}
	b.InterestRate = interest
	b.BondType = domain.BondType(bondType)
	b.Status = domain.BondStatus(status)
	if market != nil {
		m := domain.Market(*market)
		b.Market = &m
	}
	b.Maturity = b.Maturity.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.SubscriptionEndDate = b.SubscriptionEndDate.UTC()
	if b.MaturedAt != nil {
		at := b.MaturedAt.UTC()
		b.MaturedAt = &at
	}
	return b, nil
}

func scanSubscription(row scanner) (domain.Subscription, error) {
	var s domain.Subscription
	if err := row.Scan(&s.ID, &s.BondID, &s.UserID, &s.WalletAddress, &s.CommittedAmount, &s.TxHash,
		&s.SubscriptionAmt, &s.CreatedAt); err != nil {
		return domain.Subscription{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var t domain.Transaction
	if err := row.Scan(&t.ID, &t.BondID, &t.UserFrom, &t.UserTo, &t.Units, &t.TxHash, &t.CreatedAt); err != nil {
		return domain.Transaction{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func scanEvent(row scanner) (domain.Event, error) {
	var (
		e   domain.Event
		typ string
	)
	if err := row.Scan(&e.ID, &typ, &e.BondID, &e.UserID, &e.Details, &e.TxHash, &e.CreatedAt); err != nil {
		return domain.Event{}, err
	}
	e.Type = domain.EventType(typ)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func collect[T any](rows pgx.Rows, scan func(scanner) (T, error)) ([]T, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		return scan(row)
	})
}

// pgReader implements Reader over either the pool or an open transaction.
type pgReader struct {
	q querier
}

func (r pgReader) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, translate(err, "user "+id)
	}
	return user, nil
}

func (r pgReader) GetBond(ctx context.Context, id string) (domain.Bond, error) {
	bond, err := scanBond(r.q.QueryRow(ctx, `SELECT `+bondColumns+` FROM bonds WHERE id = $1`, id))
	if err != nil {
		return domain.Bond{}, translate(err, "bond "+id)
	}
	return bond, nil
}

func (r pgReader) ListBonds(ctx context.Context, filter BondFilter) ([]domain.Bond, error) {
	var w whereBuilder
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}
	if filter.Type != "" {
		w.add("bond_type = $%d", string(filter.Type))
	}
	if filter.Market != "" {
		w.add("market = $%d", string(filter.Market))
	}
	if !filter.MaturedBy.IsZero() {
		w.add("maturity <= $%d", filter.MaturedBy.UTC())
	}
	if !filter.SubscriptionEndedBy.IsZero() {
		w.add("subscription_end_date <= $%d", filter.SubscriptionEndedBy.UTC())
	}
	if filter.Unmatured {
		w.addRaw("matured_at IS NULL")
	}
	query := `SELECT ` + bondColumns + ` FROM bonds` + w.String() + ` ORDER BY created_at, id`
	query += w.page(filter.Limit, filter.Offset)

	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, translate(err, "list bonds")
	}
	bonds, err := collect(rows, scanBond)
	if err != nil {
		return nil, translate(err, "scan bonds")
	}
	return bonds, nil
}

func (r pgReader) GetVerification(ctx context.Context, id string) (domain.EKYCVerification, error) {
	v, err := scanVerification(r.q.QueryRow(ctx, `SELECT `+verificationColumns+` FROM ekyc_verifications WHERE id = $1`, id))
	if err != nil {
		return domain.EKYCVerification{}, translate(err, "verification "+id)
	}
	return v, nil
}

func (r pgReader) ListVerifications(ctx context.Context, userID string) ([]domain.EKYCVerification, error) {
	rows, err := r.q.Query(ctx, `SELECT `+verificationColumns+` FROM ekyc_verifications
		WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, translate(err, "list verifications")
	}
	out, err := collect(rows, scanVerification)
	if err != nil {
		return nil, translate(err, "scan verifications")
	}
	return out, nil
}

func (r pgReader) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]domain.Subscription, error) {
	var w whereBuilder
	if filter.BondID != "" {
		w.add("bond_id = $%d", filter.BondID)
	}
	if filter.UserID != "" {
		w.add("user_id = $%d", filter.UserID)
	}
	rows, err := r.q.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions`+w.String()+` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, translate(err, "list subscriptions")
	}
	out, err := collect(rows, scanSubscription)
	if err != nil {
		return nil, translate(err, "scan subscriptions")
	}
	return out, nil
}

func (r pgReader) ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	var w whereBuilder
	if filter.BondID != "" {
		w.add("bond_id = $%d", filter.BondID)
	}
	if filter.UserID != "" {
		w.args = append(w.args, filter.UserID)
		n := len(w.args)
		w.addRaw(fmt.Sprintf("(user_from = $%d OR user_to = $%d)", n, n))
	}
	rows, err := r.q.Query(ctx, `SELECT `+transactionColumns+` FROM transactions`+w.String()+` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, translate(err, "list transactions")
	}
	out, err := collect(rows, scanTransaction)
	if err != nil {
		return nil, translate(err, "scan transactions")
	}
	return out, nil
}

func (r pgReader) ListEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	var w whereBuilder
	if filter.BondID != "" {
		w.add("bond_id = $%d", filter.BondID)
	}
	if filter.UserID != "" {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.Type != "" {
		w.add("type = $%d", string(filter.Type))
	}
	query := `SELECT ` + eventColumns + ` FROM events` + w.String() + ` ORDER BY created_at, id`
	query += w.page(filter.Limit, 0)
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, translate(err, "list events")
	}
	out, err := collect(rows, scanEvent)
	if err != nil {
		return nil, translate(err, "scan events")
	}
	return out, nil
}

func (r pgReader) Holding(ctx context.Context, bondID, userID string) (int64, error) {
	var units int64
	err := r.q.QueryRow(ctx, `SELECT units FROM holdings WHERE bond_id = $1 AND user_id = $2`, bondID, userID).Scan(&units)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, translate(err, "holding")
	}
	return units, nil
}

func (r pgReader) Holders(ctx context.Context, bondID string) ([]domain.Holding, error) {
	rows, err := r.q.Query(ctx, `SELECT bond_id, user_id, units FROM holdings
		WHERE bond_id = $1 AND units > 0 ORDER BY user_id`, bondID)
	if err != nil {
		return nil, translate(err, "list holders")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Holding, error) {
		var h domain.Holding
		err := row.Scan(&h.BondID, &h.UserID, &h.Units)
		return h, err
	})
	if err != nil {
		return nil, translate(err, "scan holders")
	}
	return out, nil
}

func (r pgReader) SubscriptionTotal(ctx context.Context, bondID string) (int64, error) {
	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(subscription_amt), 0)::bigint FROM subscriptions
		WHERE bond_id = $1`, bondID).Scan(&total); err != nil {
		return 0, translate(err, "subscription total")
	}
	return total, nil
}

type pgTx struct {
	pgReader
}

func (t *pgTx) CreateUser(ctx context.Context, u domain.User) error {
	_, err := t.q.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Name, u.NationalID, u.WalletAddress, u.Salt, u.Email, u.DateOfBirth,
		u.PasswordHash, string(u.Role), u.HashedMnemonic, u.CreatedAt.UTC(), string(u.KYCStatus))
	return translate(err, "insert user")
}

func (t *pgTx) LockUser(ctx context.Context, id string) (domain.User, error) {
	user, err := scanUser(t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.User{}, translate(err, "lock user "+id)
	}
	return user, nil
}

func (t *pgTx) SetUserKYCStatus(ctx context.Context, id string, status domain.KYCStatus) error {
	cmd, err := t.q.Exec(ctx, `UPDATE users SET kyc_status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return translate(err, "update user kyc status")
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) CreateVerification(ctx context.Context, v domain.EKYCVerification) error {
	_, err := t.q.Exec(ctx, `INSERT INTO ekyc_verifications (`+verificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.UserID, v.NationalIDHash, v.DateOfBirth.UTC(), v.Age, v.CustodialAddress,
		v.TxDigest, string(v.Status), v.Reason, v.RequestID, v.CreatedAt.UTC(), v.UpdatedAt.UTC())
	return translate(err, "insert verification")
}

func (t *pgTx) LockVerification(ctx context.Context, id string) (domain.EKYCVerification, error) {
	v, err := scanVerification(t.q.QueryRow(ctx, `SELECT `+verificationColumns+` FROM ekyc_verifications
		WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.EKYCVerification{}, translate(err, "lock verification "+id)
	}
	return v, nil
}

func (t *pgTx) PendingVerification(ctx context.Context, userID string) (domain.EKYCVerification, bool, error) {
	v, err := scanVerification(t.q.QueryRow(ctx, `SELECT `+verificationColumns+` FROM ekyc_verifications
		WHERE user_id = $1 AND status = 'pending' LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EKYCVerification{}, false, nil
	}
	if err != nil {
		return domain.EKYCVerification{}, false, translate(err, "pending verification")
	}
	return v, true, nil
}

func (t *pgTx) UpdateVerification(ctx context.Context, v domain.EKYCVerification) error {
	cmd, err := t.q.Exec(ctx, `UPDATE ekyc_verifications
		SET status = $1, reason = $2, tx_digest = $3, updated_at = $4
		WHERE id = $5`, string(v.Status), v.Reason, v.TxDigest, v.UpdatedAt.UTC(), v.ID)
	if err != nil {
		return translate(err, "update verification")
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("verification %s: %w", v.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) CreateBond(ctx context.Context, b domain.Bond) error {
	var market *string
	if b.Market != nil {
		m := string(*b.Market)
		market = &m
	}
	_, err := t.q.Exec(ctx, `INSERT INTO bonds (id, bond_object_id, bond_name, bond_type, bond_symbol,
		organization_name, face_value, tl_unit_offered, tl_unit_subscribed, maturity, status, interest_rate,
		purpose, market, created_at, subscription_period, subscription_end_date, matured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::numeric, $13, $14, $15, $16, $17, $18)`,
		b.ID, b.BondObjectID, b.BondName, string(b.BondType), b.BondSymbol,
		b.OrganizationName, b.FaceValue, b.TLUnitOffered, b.TLUnitSubscribed, b.Maturity.UTC(), string(b.Status),
		b.InterestRate.String(), b.Purpose, market, b.CreatedAt.UTC(), b.SubscriptionPeriod,
		b.SubscriptionEndDate.UTC(), b.MaturedAt)
	return translate(err, "insert bond")
}

func (t *pgTx) LockBond(ctx context.Context, id string) (domain.Bond, error) {
	bond, err := scanBond(t.q.QueryRow(ctx, `SELECT `+bondColumns+` FROM bonds WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Bond{}, translate(err, "lock bond "+id)
	}
	return bond, nil
}

// UpdateBond writes the mutable columns of a bond.
func (t *pgTx) UpdateBond(ctx context.Context, b domain.Bond) error {
	cmd, err := t.q.Exec(ctx, `UPDATE bonds
		SET tl_unit_subscribed = $1, status = $2, matured_at = $3, bond_object_id = $4
		WHERE id = $5`, b.TLUnitSubscribed, string(b.Status), b.MaturedAt, b.BondObjectID, b.ID)
	if err != nil {
		return translate(err, "update bond")
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("bond %s: %w", b.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) CreateSubscription(ctx context.Context, s domain.Subscription) error {
	_, err := t.q.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.BondID, s.UserID, s.WalletAddress, s.CommittedAmount, s.TxHash, s.SubscriptionAmt, s.CreatedAt.UTC())
	return translate(err, "insert subscription")
}

func (t *pgTx) CreateTransaction(ctx context.Context, tr domain.Transaction) error {
	_, err := t.q.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tr.ID, tr.BondID, tr.UserFrom, tr.UserTo, tr.Units, tr.TxHash, tr.CreatedAt.UTC())
	return translate(err, "insert transaction")
}

func (t *pgTx) AppendEvent(ctx context.Context, e domain.Event) error {
	_, err := t.q.Exec(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, string(e.Type), e.BondID, e.UserID, e.Details, e.TxHash, e.CreatedAt.UTC())
	return translate(err, "insert event")
}

// LockHolding creates the position row on first use so it can be locked.
func (t *pgTx) LockHolding(ctx context.Context, bondID, userID string) (int64, error) {
	if _, err := t.q.Exec(ctx, `INSERT INTO holdings (bond_id, user_id, units) VALUES ($1, $2, 0)
		ON CONFLICT (bond_id, user_id) DO NOTHING`, bondID, userID); err != nil {
		return 0, translate(err, "ensure holding")
	}
	var units int64
	if err := t.q.QueryRow(ctx, `SELECT units FROM holdings WHERE bond_id = $1 AND user_id = $2 FOR UPDATE`,
		bondID, userID).Scan(&units); err != nil {
		return 0, translate(err, "lock holding")
	}
	return units, nil
}

func (t *pgTx) AdjustHolding(ctx context.Context, bondID, userID string, delta int64) (int64, error) {
	var units int64
	err := t.q.QueryRow(ctx, `INSERT INTO holdings (bond_id, user_id, units, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (bond_id, user_id) DO UPDATE
		SET units = holdings.units + EXCLUDED.units, updated_at = now()
		RETURNING units`, bondID, userID, delta).Scan(&units)
	if err != nil {
		return 0, translate(err, "adjust holding")
	}
	return units, nil
}
