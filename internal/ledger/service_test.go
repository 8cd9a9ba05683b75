package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/logging"
	"github.com/bondify/bondify/internal/notification"
	"github.com/bondify/bondify/internal/store"
)

var issuedAt = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (r *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return nil
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, m := range r.sent {
		out = append(out, m.Kind)
	}
	return out
}

type fixture struct {
	store    *store.Memory
	svc      *Service
	notifier *recordingNotifier
	clock    *time.Time
	bond     domain.Bond
	users    int64
}

func newFixture(t *testing.T, offered int64) *fixture {
	t.Helper()
	s := store.NewMemory(2 * time.Second)
	clock := issuedAt.Add(time.Hour)
	f := &fixture{store: s, notifier: &recordingNotifier{}, clock: &clock}
	f.svc = NewService(s, f.notifier, logging.Discard(), WithClock(func() time.Time { return *f.clock }))
	f.bond = domain.Bond{
		ID:                  "bond-a",
		BondName:            "Municipal Water 2030",
		BondType:            domain.BondDomestic,
		BondSymbol:          "MW30",
		OrganizationName:    "City Water",
		FaceValue:           1_000,
		TLUnitOffered:       offered,
		Maturity:            issuedAt.AddDate(4, 0, 0),
		Status:              domain.BondOpen,
		InterestRate:        decimal.RequireFromString("3.5"),
		CreatedAt:           issuedAt,
		SubscriptionPeriod:  30,
		SubscriptionEndDate: issuedAt.AddDate(0, 0, 30),
	}
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateBond(context.Background(), f.bond)
	})
	if err != nil {
		t.Fatalf("create bond: %v", err)
	}
	return f
}

func (f *fixture) user(t *testing.T, id string, status domain.KYCStatus) domain.User {
	t.Helper()
	f.users++
	u := domain.User{
		ID:         id,
		NationalID: 9000 + f.users,
		Email:      id + "@example.com",
		Salt:       "salt",
		Role:       domain.RoleUser,
		KYCStatus:  status,
		CreatedAt:  issuedAt,
	}
	err := f.store.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateUser(context.Background(), u)
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}

func subscribe(userID string, committed int64) SubscribeInput {
	return SubscribeInput{BondID: "bond-a", UserID: userID, WalletAddress: "0x" + userID, CommittedAmount: committed, TxHash: "0xsub-" + userID}
}

func TestScenarioFullSubscriptionClosesBond(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	u := f.user(t, "user-u", domain.KYCVerified)
	v := f.user(t, "user-v", domain.KYCVerified)

	res, err := f.svc.Subscribe(ctx, subscribe(u.ID, 1000))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if res.Subscription.Allocated() != 1000 || res.Bond.TLUnitSubscribed != 1000 || res.Bond.Status != domain.BondClosed {
		t.Fatalf("unexpected result %+v", res)
	}

	_, err = f.svc.Subscribe(ctx, subscribe(v.ID, 500))
	if !errors.Is(err, domain.ErrBondFullySubscribed) {
		t.Fatalf("expected fully subscribed, got %v", err)
	}
	subs, _ := f.store.ListSubscriptions(ctx, store.SubscriptionFilter{BondID: "bond-a"})
	if len(subs) != 1 {
		t.Fatalf("rejected subscription left state behind: %d subscriptions", len(subs))
	}
	bond, _ := f.store.GetBond(ctx, "bond-a")
	if bond.TLUnitSubscribed != 1000 {
		t.Fatalf("bond changed after rejection: %d", bond.TLUnitSubscribed)
	}
}

func TestSubscribeRequiresVerifiedUser(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	pending := f.user(t, "user-p", domain.KYCPending)

	if _, err := f.svc.Subscribe(ctx, subscribe(pending.ID, 10)); !errors.Is(err, domain.ErrKYCRequired) {
		t.Fatalf("expected kyc required, got %v", err)
	}
	subs, _ := f.store.ListSubscriptions(ctx, store.SubscriptionFilter{UserID: pending.ID})
	if len(subs) != 0 {
		t.Fatalf("subscription created for unverified user")
	}
	if events, _ := f.store.ListEvents(ctx, store.EventFilter{BondID: "bond-a"}); len(events) != 0 {
		t.Fatalf("event written for failed subscription")
	}
}

func TestSubscribePartialFill(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)
	b := f.user(t, "user-b", domain.KYCVerified)

	if _, err := f.svc.Subscribe(ctx, subscribe(a.ID, 70)); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	res, err := f.svc.Subscribe(ctx, subscribe(b.ID, 50))
	if err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if res.Subscription.Allocated() != 30 || res.Subscription.CommittedAmount != 50 {
		t.Fatalf("expected 30 of 50 allocated, got %+v", res.Subscription)
	}
	if res.Bond.Status != domain.BondClosed {
		t.Fatalf("filled bond should close")
	}
}

func TestSubscribeAfterWindow(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)

	*f.clock = f.bond.SubscriptionEndDate
	_, err := f.svc.Subscribe(ctx, subscribe(a.ID, 10))
	if !errors.Is(err, domain.ErrSubscriptionClosed) || !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected closed window, got %v", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)

	in := subscribe(a.ID, 0)
	if _, err := f.svc.Subscribe(ctx, in); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	in = subscribe(a.ID, 1)
	in.BondID = "missing"
	if _, err := f.svc.Subscribe(ctx, in); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentSubscriptionsNeverOverallocate(t *testing.T) {
	const (
		offered = 1000
		workers = 16
	)
	f := newFixture(t, offered)
	ctx := context.Background()

	users := make([]domain.User, workers)
	for i := range users {
		users[i] = f.user(t, fmt.Sprintf("user-%02d", i), domain.KYCVerified)
	}

	var (
		wg        sync.WaitGroup
		allocated atomic.Int64
	)
	for _, u := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			// Each request exceeds 1/N of capacity.
			res, err := f.svc.Subscribe(ctx, subscribe(id, offered/workers*3))
			if err != nil {
				if !errors.Is(err, domain.ErrBondFullySubscribed) && !errors.Is(err, domain.ErrSubscriptionClosed) {
					t.Errorf("subscribe %s: %v", id, err)
				}
				return
			}
			allocated.Add(res.Subscription.Allocated())
		}(u.ID)
	}
	wg.Wait()

	bond, _ := f.store.GetBond(ctx, "bond-a")
	if bond.TLUnitSubscribed != offered || allocated.Load() != offered {
		t.Fatalf("subscribed=%d allocated=%d, want %d", bond.TLUnitSubscribed, allocated.Load(), offered)
	}
	report, err := f.svc.Reconcile(ctx, "bond-a")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Balanced {
		t.Fatalf("ledger not balanced: %+v", report)
	}
}

func TestScenarioTransfer(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)
	b := f.user(t, "user-b", domain.KYCVerified)

	if _, err := f.svc.Subscribe(ctx, subscribe(a.ID, 1000)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	res, err := f.svc.Transfer(ctx, TransferInput{BondID: "bond-a", FromUserID: a.ID, ToUserID: b.ID, Units: 100, TxHash: "0xt1"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.FromBalance != 900 || res.ToBalance != 100 {
		t.Fatalf("unexpected balances %+v", res)
	}

	txs, _ := f.store.ListTransactions(ctx, store.TransactionFilter{BondID: "bond-a"})
	if len(txs) != 1 || txs[0].Units != 100 {
		t.Fatalf("expected one transaction row, got %+v", txs)
	}
	events, _ := f.store.ListEvents(ctx, store.EventFilter{BondID: "bond-a", Type: domain.EventTransfer})
	if len(events) != 1 {
		t.Fatalf("expected one transfer event, got %d", len(events))
	}

	for id, want := range map[string]int64{a.ID: 900, b.ID: 100} {
		got, err := f.svc.Holding(ctx, "bond-a", id)
		if err != nil || got != want {
			t.Fatalf("holding %s = %d (%v), want %d", id, got, err, want)
		}
		logged, err := f.svc.PositionFromLog(ctx, "bond-a", id)
		if err != nil || logged != want {
			t.Fatalf("log position %s = %d (%v), want %d", id, logged, err, want)
		}
	}

	kinds := f.notifier.kinds()
	if len(kinds) != 2 || kinds[1] != notification.KindTransfer {
		t.Fatalf("unexpected notifications %v", kinds)
	}
	if f.notifier.sent[1].Destination != b.ID {
		t.Fatalf("transfer notification should reach the receiver")
	}
}

func TestTransferRejections(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)
	b := f.user(t, "user-b", domain.KYCVerified)
	p := f.user(t, "user-p", domain.KYCRejected)

	if _, err := f.svc.Subscribe(ctx, subscribe(a.ID, 50)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cases := []struct {
		name string
		in   TransferInput
		want error
	}{
		{"overdraw", TransferInput{BondID: "bond-a", FromUserID: a.ID, ToUserID: b.ID, Units: 51, TxHash: "h"}, domain.ErrInsufficientHolding},
		{"no holding", TransferInput{BondID: "bond-a", FromUserID: b.ID, ToUserID: a.ID, Units: 1, TxHash: "h"}, domain.ErrInsufficientHolding},
		{"unverified receiver", TransferInput{BondID: "bond-a", FromUserID: a.ID, ToUserID: p.ID, Units: 1, TxHash: "h"}, domain.ErrKYCRequired},
		{"self", TransferInput{BondID: "bond-a", FromUserID: a.ID, ToUserID: a.ID, Units: 1, TxHash: "h"}, domain.ErrInvalidArgument},
		{"zero", TransferInput{BondID: "bond-a", FromUserID: a.ID, ToUserID: b.ID, Units: 0, TxHash: "h"}, domain.ErrInvalidArgument},
		{"unknown bond", TransferInput{BondID: "nope", FromUserID: a.ID, ToUserID: b.ID, Units: 1, TxHash: "h"}, domain.ErrNotFound},
		{"unknown user", TransferInput{BondID: "bond-a", FromUserID: a.ID, ToUserID: "ghost", Units: 1, TxHash: "h"}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Transfer(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if units, _ := f.svc.Holding(ctx, "bond-a", a.ID); units != 50 {
		t.Fatalf("failed transfers changed the holding: %d", units)
	}
}

func TestConcurrentTransfersNoDoubleSpend(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)
	b := f.user(t, "user-b", domain.KYCVerified)
	c := f.user(t, "user-c", domain.KYCVerified)
	if _, err := f.svc.Subscribe(ctx, subscribe(a.ID, 100)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := b.ID
			if i%2 == 0 {
				to = c.ID
			}
			_, err := f.svc.Transfer(ctx, TransferInput{BondID: "bond-a", FromUserID: a.ID, ToUserID: to, Units: 30, TxHash: fmt.Sprintf("0x%d", i)})
			if err == nil {
				succeeded.Add(1)
			} else if !errors.Is(err, domain.ErrInsufficientHolding) {
				t.Errorf("transfer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded.Load() != 3 {
		t.Fatalf("expected 3 successful transfers of 30 from 100, got %d", succeeded.Load())
	}
	if units, _ := f.svc.Holding(ctx, "bond-a", a.ID); units != 10 {
		t.Fatalf("sender should keep 10, got %d", units)
	}
}

func TestMatureBondIsOneShot(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)
	b := f.user(t, "user-b", domain.KYCVerified)
	c := f.user(t, "user-c", domain.KYCVerified)

	if _, err := f.svc.Subscribe(ctx, subscribe(a.ID, 600)); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if _, err := f.svc.Subscribe(ctx, subscribe(b.ID, 100)); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	// b hands everything to c, leaving b with a zero position.
	if _, err := f.svc.Transfer(ctx, TransferInput{BondID: "bond-a", FromUserID: b.ID, ToUserID: c.ID, Units: 100, TxHash: "0xbc"}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if _, err := f.svc.MatureBond(ctx, "bond-a"); !errors.Is(err, domain.ErrNotMatured) {
		t.Fatalf("expected not matured before maturity date, got %v", err)
	}

	*f.clock = f.bond.Maturity
	events, err := f.svc.MatureBond(ctx, "bond-a")
	if err != nil {
		t.Fatalf("mature: %v", err)
	}
	if len(events) != 2 || events[0].UserID != a.ID || events[1].UserID != c.ID {
		t.Fatalf("expected events for a and c, got %+v", events)
	}

	if _, err := f.svc.MatureBond(ctx, "bond-a"); !errors.Is(err, domain.ErrAlreadyMatured) {
		t.Fatalf("expected already matured, got %v", err)
	}
	stored, _ := f.store.ListEvents(ctx, store.EventFilter{BondID: "bond-a", Type: domain.EventMaturity})
	if len(stored) != 2 {
		t.Fatalf("maturity events duplicated: %d", len(stored))
	}

	bond, _ := f.store.GetBond(ctx, "bond-a")
	if bond.Status != domain.BondClosed || bond.MaturedAt == nil {
		t.Fatalf("bond not marked matured: %+v", bond)
	}
	if _, err := f.svc.Transfer(ctx, TransferInput{BondID: "bond-a", FromUserID: a.ID, ToUserID: c.ID, Units: 1, TxHash: "0xlate"}); !errors.Is(err, domain.ErrAlreadyMatured) {
		t.Fatalf("expected transfer after maturity to fail, got %v", err)
	}
}

func TestMatureRecordsSettlementHash(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)
	if _, err := f.svc.Subscribe(ctx, subscribe(a.ID, 25)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	*f.clock = f.bond.Maturity

	events, err := f.svc.Mature(ctx, MatureInput{BondID: "bond-a", TxHash: " 0xsettle "})
	if err != nil {
		t.Fatalf("mature: %v", err)
	}
	if len(events) != 1 || events[0].TxHash != "0xsettle" {
		t.Fatalf("expected settlement hash on the maturity event, got %+v", events)
	}
	stored, _ := f.store.ListEvents(ctx, store.EventFilter{BondID: "bond-a", Type: domain.EventMaturity})
	if len(stored) != 1 || stored[0].TxHash != "0xsettle" {
		t.Fatalf("stored maturity event lost its hash: %+v", stored)
	}
}

func TestConcurrentMaturityEmitsOnce(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)
	if _, err := f.svc.Subscribe(ctx, subscribe(a.ID, 10)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	*f.clock = f.bond.Maturity.Add(time.Hour)

	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.MatureBond(ctx, "bond-a")
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, domain.ErrAlreadyMatured):
				t.Errorf("mature: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected one winning maturity run, got %d", wins.Load())
	}
}

func TestReconcileDetectsDrift(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()
	a := f.user(t, "user-a", domain.KYCVerified)
	if _, err := f.svc.Subscribe(ctx, subscribe(a.ID, 10)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	report, err := f.svc.Reconcile(ctx, "bond-a")
	if err != nil || !report.Balanced {
		t.Fatalf("expected balanced ledger, got %+v (%v)", report, err)
	}

	// Write a holding outside the ledger to simulate drift.
	err = f.store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.AdjustHolding(ctx, "bond-a", a.ID, 5)
		return err
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	report, err = f.svc.Reconcile(ctx, "bond-a")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Balanced || len(report.Mismatched) != 1 || report.Mismatched[0] != a.ID {
		t.Fatalf("drift not reported: %+v", report)
	}
}
