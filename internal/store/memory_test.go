package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bondify/bondify/internal/domain"
)

func seed(t *testing.T, s Store) (domain.User, domain.Bond) {
	t.Helper()
	now := time.Now().UTC()
	user := domain.User{ID: "user-1", NationalID: 1001, Email: "a@example.com", Salt: "s", Role: domain.RoleUser, KYCStatus: domain.KYCVerified, CreatedAt: now}
	bond := domain.Bond{
		ID:                  "bond-1",
		BondName:            "Treasury 2030",
		BondType:            domain.BondGovernment,
		BondSymbol:          "TR30",
		OrganizationName:    "Treasury",
		FaceValue:           100,
		TLUnitOffered:       1_000,
		Maturity:            now.AddDate(5, 0, 0),
		Status:              domain.BondOpen,
		InterestRate:        decimal.RequireFromString("4.25"),
		CreatedAt:           now,
		SubscriptionPeriod:  30,
		SubscriptionEndDate: now.AddDate(0, 0, 30),
	}
	err := s.WithTx(context.Background(), func(tx Tx) error {
		if err := tx.CreateUser(context.Background(), user); err != nil {
			return err
		}
		return tx.CreateBond(context.Background(), bond)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return user, bond
}

func TestMemory_RollbackOnError(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	user, bond := seed(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		bond.TLUnitSubscribed = 500
		if err := tx.UpdateBond(ctx, bond); err != nil {
			return err
		}
		if _, err := tx.AdjustHolding(ctx, bond.ID, user.ID, 500); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	stored, err := s.GetBond(ctx, bond.ID)
	if err != nil {
		t.Fatalf("get bond: %v", err)
	}
	if stored.TLUnitSubscribed != 0 {
		t.Fatalf("rolled back write is visible: subscribed=%d", stored.TLUnitSubscribed)
	}
	if units, _ := s.Holding(ctx, bond.ID, user.ID); units != 0 {
		t.Fatalf("rolled back holding is visible: %d", units)
	}
}

func TestMemory_ContentionTimeout(t *testing.T) {
	s := NewMemory(20 * time.Millisecond)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.WithTx(ctx, func(tx Tx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := s.WithTx(ctx, func(tx Tx) error { return nil })
	close(release)
	if !errors.Is(err, domain.ErrContention) {
		t.Fatalf("expected contention, got %v", err)
	}
}

func TestMemory_AdjustHoldingNeverNegative(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	user, bond := seed(t, s)

	err := s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.AdjustHolding(ctx, bond.ID, user.ID, -1)
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientHolding) {
		t.Fatalf("expected insufficient holding, got %v", err)
	}
}

func TestMemory_UpdateBondRejectsOvercommit(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	_, bond := seed(t, s)

	err := s.WithTx(ctx, func(tx Tx) error {
		bond.TLUnitSubscribed = bond.TLUnitOffered + 1
		return tx.UpdateBond(ctx, bond)
	})
	if !errors.Is(err, domain.ErrBondFullySubscribed) {
		t.Fatalf("expected fully subscribed, got %v", err)
	}
}

func TestMemory_UniqueUserFields(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	user, _ := seed(t, s)

	dup := user
	dup.ID = "user-2"
	dup.NationalID = 2002
	err := s.WithTx(ctx, func(tx Tx) error { return tx.CreateUser(ctx, dup) })
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestMemory_ForeignKeys(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	user, _ := seed(t, s)

	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.AppendEvent(ctx, domain.Event{ID: "e", Type: domain.EventTransfer, BondID: "missing", UserID: user.ID})
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemory_OnePendingVerification(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	user, _ := seed(t, s)

	v := domain.EKYCVerification{ID: "v1", UserID: user.ID, Status: domain.KYCPending, CreatedAt: time.Now()}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.CreateVerification(ctx, v) }); err != nil {
		t.Fatalf("first verification: %v", err)
	}
	v.ID = "v2"
	err := s.WithTx(ctx, func(tx Tx) error { return tx.CreateVerification(ctx, v) })
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}
}

func TestMemory_ListBondsFilter(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	_, bond := seed(t, s)

	past := time.Now().UTC().Add(-time.Hour)
	expired := bond
	expired.ID = "bond-2"
	expired.CreatedAt = bond.CreatedAt.Add(time.Second)
	expired.SubscriptionEndDate = past
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.CreateBond(ctx, expired) }); err != nil {
		t.Fatalf("create bond: %v", err)
	}

	got, err := s.ListBonds(ctx, BondFilter{Status: domain.BondOpen, SubscriptionEndedBy: time.Now().UTC()})
	if err != nil {
		t.Fatalf("list bonds: %v", err)
	}
	if len(got) != 1 || got[0].ID != "bond-2" {
		t.Fatalf("expected only expired bond, got %+v", got)
	}

	all, _ := s.ListBonds(ctx, BondFilter{Limit: 1, Offset: 1})
	if len(all) != 1 || all[0].ID != "bond-2" {
		t.Fatalf("pagination returned %+v", all)
	}
}

func TestMemory_ConcurrentWritersSerialized(t *testing.T) {
	s := NewMemory(5 * time.Second)
	ctx := context.Background()
	user, bond := seed(t, s)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx Tx) error {
				_, err := tx.AdjustHolding(ctx, bond.ID, user.ID, 10)
				if err != nil {
					return err
				}
				return tx.AppendEvent(ctx, domain.Event{ID: fmt.Sprintf("e-%d", i), Type: domain.EventSubscription, BondID: bond.ID, UserID: user.ID})
			})
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	units, _ := s.Holding(ctx, bond.ID, user.ID)
	if units != workers*10 {
		t.Fatalf("expected %d units, got %d", workers*10, units)
	}
	events, _ := s.ListEvents(ctx, EventFilter{BondID: bond.ID})
	if len(events) != workers {
		t.Fatalf("expected %d events, got %d", workers, len(events))
	}
}
