package bonds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/logging"
	"github.com/bondify/bondify/internal/store"
)

func issueInput(now time.Time) IssueInput {
	return IssueInput{
		BondName:           "Green Infrastructure 2031",
		BondType:           domain.BondGreen,
		BondSymbol:         "gi31",
		OrganizationName:   "Development Bank",
		FaceValue:          10_000,
		TLUnitOffered:      500,
		Maturity:           now.AddDate(5, 0, 0),
		InterestRate:       decimal.RequireFromString("5.125"),
		Market:             domain.MarketCurrent,
		SubscriptionPeriod: 14,
	}
}

func TestIssueOpensBond(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(store.NewMemory(time.Second), logging.Discard(), WithClock(func() time.Time { return now }))

	bond, err := svc.Issue(context.Background(), issueInput(now))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if bond.Status != domain.BondOpen || bond.TLUnitSubscribed != 0 {
		t.Fatalf("unexpected initial state %+v", bond)
	}
	if want := now.AddDate(0, 0, 14); !bond.SubscriptionEndDate.Equal(want) {
		t.Fatalf("window end %s, want %s", bond.SubscriptionEndDate, want)
	}
	if bond.BondSymbol != "GI31" {
		t.Fatalf("symbol not normalised: %s", bond.BondSymbol)
	}
	got, err := svc.Get(context.Background(), bond.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.InterestRate.Equal(decimal.RequireFromString("5.125")) {
		t.Fatalf("interest rate lost precision: %s", got.InterestRate)
	}
}

func TestIssueValidation(t *testing.T) {
	now := time.Now().UTC()
	svc := NewService(store.NewMemory(time.Second), logging.Discard())

	cases := map[string]func(*IssueInput){
		"bad type":       func(in *IssueInput) { in.BondType = "junk" },
		"zero units":     func(in *IssueInput) { in.TLUnitOffered = 0 },
		"zero face":      func(in *IssueInput) { in.FaceValue = 0 },
		"no period":      func(in *IssueInput) { in.SubscriptionPeriod = 0 },
		"early maturity": func(in *IssueInput) { in.Maturity = now.AddDate(0, 0, 7) },
		"negative rate":  func(in *IssueInput) { in.InterestRate = decimal.NewFromInt(-1) },
		"unknown market": func(in *IssueInput) { in.Market = "grey" },
		"missing symbol": func(in *IssueInput) { in.BondSymbol = " " },
		"missing issuer": func(in *IssueInput) { in.OrganizationName = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := issueInput(now)
			mutate(&in)
			if _, err := svc.Issue(context.Background(), in); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestCloseExpired(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := issuedAt
	s := store.NewMemory(time.Second)
	svc := NewService(s, logging.Discard(), WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	short := issueInput(issuedAt)
	short.SubscriptionPeriod = 1
	expiring, err := svc.Issue(ctx, short)
	if err != nil {
		t.Fatalf("issue short: %v", err)
	}
	lasting, err := svc.Issue(ctx, issueInput(issuedAt))
	if err != nil {
		t.Fatalf("issue long: %v", err)
	}

	closed, err := svc.CloseExpired(ctx, issuedAt.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("close expired: %v", err)
	}
	if len(closed) != 1 || closed[0] != expiring.ID {
		t.Fatalf("expected only %s closed, got %v", expiring.ID, closed)
	}

	if b, _ := svc.Get(ctx, expiring.ID); b.Status != domain.BondClosed {
		t.Fatalf("expired bond still %s", b.Status)
	}
	if b, _ := svc.Get(ctx, lasting.ID); b.Status != domain.BondOpen {
		t.Fatalf("open window bond closed early")
	}

	again, err := svc.CloseExpired(ctx, issuedAt.Add(48*time.Hour))
	if err != nil || len(again) != 0 {
		t.Fatalf("second sweep should be a no-op, got %v %v", again, err)
	}
}

func TestListFiltersAndBoundsPage(t *testing.T) {
	now := time.Now().UTC()
	svc := NewService(store.NewMemory(time.Second), logging.Discard())
	ctx := context.Background()

	green := issueInput(now)
	if _, err := svc.Issue(ctx, green); err != nil {
		t.Fatalf("issue green: %v", err)
	}
	corp := issueInput(now)
	corp.BondType = domain.BondCorporate
	if _, err := svc.Issue(ctx, corp); err != nil {
		t.Fatalf("issue corporate: %v", err)
	}

	list, err := svc.List(ctx, store.BondFilter{Type: domain.BondCorporate})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].BondType != domain.BondCorporate {
		t.Fatalf("unexpected list %+v", list)
	}
	if _, err := svc.List(ctx, store.BondFilter{Offset: -1}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid offset, got %v", err)
	}
}
