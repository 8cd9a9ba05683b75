package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bondify/bondify/internal/domain"
)

const defaultLockTimeout = 5 * time.Second

type holdingKey struct {
	bondID string
	userID string
}

// memState is never mutated once published; transactions work on a clone.
type memState struct {
	users         map[string]domain.User
	verifications map[string]domain.EKYCVerification
	bonds         map[string]domain.Bond
	subscriptions []domain.Subscription
	transactions  []domain.Transaction
	events        []domain.Event
	holdings      map[holdingKey]int64
}

func (s *memState) clone() *memState {
	return &memState{
		users:         maps.Clone(s.users),
		verifications: maps.Clone(s.verifications),
		bonds:         maps.Clone(s.bonds),
		subscriptions: slices.Clone(s.subscriptions),
		transactions:  slices.Clone(s.transactions),
		events:        slices.Clone(s.events),
		holdings:      maps.Clone(s.holdings),
	}
}

// Memory is a concurrency-safe in-memory store useful for unit tests and
// local development. Writers are serialized; readers see the last commit.
type Memory struct {
	mu          sync.RWMutex
	state       *memState
	writer      chan struct{}
	lockTimeout time.Duration
}

// NewMemory creates an empty in-memory store. Writers waiting longer than
// lockTimeout fail with domain.ErrContention.
func NewMemory(lockTimeout time.Duration) *Memory {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Memory{
		state: &memState{
			users:         make(map[string]domain.User),
			verifications: make(map[string]domain.EKYCVerification),
			bonds:         make(map[string]domain.Bond),
			holdings:      make(map[holdingKey]int64),
		},
		writer:      make(chan struct{}, 1),
		lockTimeout: lockTimeout,
	}
}

// WithTx runs fn against a private copy of the state and publishes it on success.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-m.writer }()

	work := m.current().clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *Memory) acquire(ctx context.Context) error {
	timer := time.NewTimer(m.lockTimeout)
	defer timer.Stop()
	select {
	case m.writer <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("acquire write lock after %s: %w", m.lockTimeout, domain.ErrContention)
	case <-ctx.Done():
		return fmt.Errorf("acquire write lock: %w: %w", domain.ErrContention, ctx.Err())
	}
}

func (m *Memory) current() *memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Memory) reader() *memTx {
	return &memTx{st: m.current()}
}

func (m *Memory) GetUser(ctx context.Context, id string) (domain.User, error) {
	return m.reader().GetUser(ctx, id)
}

func (m *Memory) GetBond(ctx context.Context, id string) (domain.Bond, error) {
	return m.reader().GetBond(ctx, id)
}

func (m *Memory) ListBonds(ctx context.Context, filter BondFilter) ([]domain.Bond, error) {
	return m.reader().ListBonds(ctx, filter)
}

func (m *Memory) GetVerification(ctx context.Context, id string) (domain.EKYCVerification, error) {
	return m.reader().GetVerification(ctx, id)
}

func (m *Memory) ListVerifications(ctx context.Context, userID string) ([]domain.EKYCVerification, error) {
	return m.reader().ListVerifications(ctx, userID)
}

func (m *Memory) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]domain.Subscription, error) {
	return m.reader().ListSubscriptions(ctx, filter)
}

func (m *Memory) ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	return m.reader().ListTransactions(ctx, filter)
}

func (m *Memory) ListEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	return m.reader().ListEvents(ctx, filter)
}

func (m *Memory) Holding(ctx context.Context, bondID, userID string) (int64, error) {
	return m.reader().Holding(ctx, bondID, userID)
}

func (m *Memory) Holders(ctx context.Context, bondID string) ([]domain.Holding, error) {
	return m.reader().Holders(ctx, bondID)
}

func (m *Memory) SubscriptionTotal(ctx context.Context, bondID string) (int64, error) {
	return m.reader().SubscriptionTotal(ctx, bondID)
}

type memTx struct {
	st *memState
}

func (t *memTx) GetUser(_ context.Context, id string) (domain.User, error) {
	user, ok := t.st.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return user, nil
}

func (t *memTx) GetBond(_ context.Context, id string) (domain.Bond, error) {
	bond, ok := t.st.bonds[id]
	if !ok {
		return domain.Bond{}, fmt.Errorf("bond %s: %w", id, domain.ErrNotFound)
	}
	return bond, nil
}

func (t *memTx) ListBonds(_ context.Context, filter BondFilter) ([]domain.Bond, error) {
	bonds := make([]domain.Bond, 0, len(t.st.bonds))
	for _, b := range t.st.bonds {
		if filter.matches(b) {
			bonds = append(bonds, b)
		}
	}
	sort.Slice(bonds, func(i, j int) bool {
		if bonds[i].CreatedAt.Equal(bonds[j].CreatedAt) {
			return bonds[i].ID < bonds[j].ID
		}
		return bonds[i].CreatedAt.Before(bonds[j].CreatedAt)
	})
	return paginate(bonds, filter.Offset, filter.Limit), nil
}

func (t *memTx) GetVerification(_ context.Context, id string) (domain.EKYCVerification, error) {
	v, ok := t.st.verifications[id]
	if !ok {
		return domain.EKYCVerification{}, fmt.Errorf("verification %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

func (t *memTx) ListVerifications(_ context.Context, userID string) ([]domain.EKYCVerification, error) {
	var out []domain.EKYCVerification
	for _, v := range t.st.verifications {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) ListSubscriptions(_ context.Context, filter SubscriptionFilter) ([]domain.Subscription, error) {
	var out []domain.Subscription
	for _, s := range t.st.subscriptions {
		if filter.BondID != "" && s.BondID != filter.BondID {
			continue
		}
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (t *memTx) ListTransactions(_ context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tr := range t.st.transactions {
		if filter.BondID != "" && tr.BondID != filter.BondID {
			continue
		}
		if filter.UserID != "" && tr.UserFrom != filter.UserID && tr.UserTo != filter.UserID {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func (t *memTx) ListEvents(_ context.Context, filter EventFilter) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range t.st.events {
		if filter.BondID != "" && e.BondID != filter.BondID {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, 0, filter.Limit), nil
}

func (t *memTx) Holding(_ context.Context, bondID, userID string) (int64, error) {
	return t.st.holdings[holdingKey{bondID, userID}], nil
}

func (t *memTx) Holders(_ context.Context, bondID string) ([]domain.Holding, error) {
	var out []domain.Holding
	for k, units := range t.st.holdings {
		if k.bondID == bondID && units > 0 {
			out = append(out, domain.Holding{BondID: k.bondID, UserID: k.userID, Units: units})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (t *memTx) SubscriptionTotal(_ context.Context, bondID string) (int64, error) {
	var total int64
	for _, s := range t.st.subscriptions {
		if s.BondID == bondID {
			total += s.Allocated()
		}
	}
	return total, nil
}

func (t *memTx) CreateUser(_ context.Context, user domain.User) error {
	if _, exists := t.st.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, domain.ErrDuplicateSubmission)
	}
	for _, u := range t.st.users {
		switch {
		case u.Email == user.Email:
			return fmt.Errorf("email already registered: %w", domain.ErrDuplicateSubmission)
		case u.NationalID == user.NationalID:
			return fmt.Errorf("national id already registered: %w", domain.ErrDuplicateSubmission)
		case u.WalletAddress != nil && user.WalletAddress != nil && *u.WalletAddress == *user.WalletAddress:
			return fmt.Errorf("wallet address already registered: %w", domain.ErrDuplicateSubmission)
		}
	}
	t.st.users[user.ID] = user
	return nil
}

func (t *memTx) LockUser(ctx context.Context, id string) (domain.User, error) {
	return t.GetUser(ctx, id)
}

func (t *memTx) SetUserKYCStatus(_ context.Context, id string, status domain.KYCStatus) error {
	user, ok := t.st.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	user.KYCStatus = status
	t.st.users[id] = user
	return nil
}

func (t *memTx) CreateVerification(ctx context.Context, v domain.EKYCVerification) error {
	if _, ok := t.st.users[v.UserID]; !ok {
		return fmt.Errorf("user %s: %w", v.UserID, domain.ErrNotFound)
	}
	if v.Status == domain.KYCPending {
		if _, pending, _ := t.PendingVerification(ctx, v.UserID); pending {
			return fmt.Errorf("pending verification exists: %w", domain.ErrDuplicateSubmission)
		}
	}
	t.st.verifications[v.ID] = v
	return nil
}

func (t *memTx) LockVerification(ctx context.Context, id string) (domain.EKYCVerification, error) {
	return t.GetVerification(ctx, id)
}

func (t *memTx) PendingVerification(_ context.Context, userID string) (domain.EKYCVerification, bool, error) {
	for _, v := range t.st.verifications {
		if v.UserID == userID && v.Status == domain.KYCPending {
			return v, true, nil
		}
	}
	return domain.EKYCVerification{}, false, nil
}

func (t *memTx) UpdateVerification(_ context.Context, v domain.EKYCVerification) error {
	if _, ok := t.st.verifications[v.ID]; !ok {
		return fmt.Errorf("verification %s: %w", v.ID, domain.ErrNotFound)
	}
	t.st.verifications[v.ID] = v
	return nil
}

func (t *memTx) CreateBond(_ context.Context, bond domain.Bond) error {
	if _, exists := t.st.bonds[bond.ID]; exists {
		return fmt.Errorf("bond %s: %w", bond.ID, domain.ErrDuplicateSubmission)
	}
	t.st.bonds[bond.ID] = bond
	return nil
}

func (t *memTx) LockBond(ctx context.Context, id string) (domain.Bond, error) {
	return t.GetBond(ctx, id)
}

func (t *memTx) UpdateBond(_ context.Context, bond domain.Bond) error {
	if _, ok := t.st.bonds[bond.ID]; !ok {
		return fmt.Errorf("bond %s: %w", bond.ID, domain.ErrNotFound)
	}
	if bond.TLUnitSubscribed < 0 || bond.TLUnitSubscribed > bond.TLUnitOffered {
		return fmt.Errorf("bond %s subscribed %d of %d: %w", bond.ID, bond.TLUnitSubscribed, bond.TLUnitOffered, domain.ErrBondFullySubscribed)
	}
	t.st.bonds[bond.ID] = bond
	return nil
}

func (t *memTx) CreateSubscription(_ context.Context, sub domain.Subscription) error {
	if err := t.requireRefs(sub.BondID, sub.UserID); err != nil {
		return err
	}
	t.st.subscriptions = append(t.st.subscriptions, sub)
	return nil
}

func (t *memTx) CreateTransaction(_ context.Context, tr domain.Transaction) error {
	if err := t.requireRefs(tr.BondID, tr.UserFrom, tr.UserTo); err != nil {
		return err
	}
	t.st.transactions = append(t.st.transactions, tr)
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e domain.Event) error {
	if err := t.requireRefs(e.BondID, e.UserID); err != nil {
		return err
	}
	t.st.events = append(t.st.events, e)
	return nil
}

func (t *memTx) LockHolding(_ context.Context, bondID, userID string) (int64, error) {
	if err := t.requireRefs(bondID, userID); err != nil {
		return 0, err
	}
	return t.st.holdings[holdingKey{bondID, userID}], nil
}

func (t *memTx) AdjustHolding(_ context.Context, bondID, userID string, delta int64) (int64, error) {
	if err := t.requireRefs(bondID, userID); err != nil {
		return 0, err
	}
	key := holdingKey{bondID, userID}
	units := t.st.holdings[key] + delta
	if units < 0 {
		return 0, fmt.Errorf("holding of %s in %s would be %d: %w", userID, bondID, units, domain.ErrInsufficientHolding)
	}
	t.st.holdings[key] = units
	return units, nil
}

// requireRefs mirrors the foreign keys: first id is a bond, the rest users.
func (t *memTx) requireRefs(bondID string, userIDs ...string) error {
	if _, ok := t.st.bonds[bondID]; !ok {
		return fmt.Errorf("bond %s: %w", bondID, domain.ErrNotFound)
	}
	for _, id := range userIDs {
		if _, ok := t.st.users[id]; !ok {
			return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
	}
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
