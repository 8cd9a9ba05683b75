package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/store"
)

func TestRegisterStoresPendingUser(t *testing.T) {
	s := store.NewMemory(time.Second)
	svc := NewService(s)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Name: "Ada", NationalID: 42, Email: " Ada@Example.com ", Password: "correct-horse", Mnemonic: "abandon ability able"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.KYCStatus != domain.KYCPending || user.Role != domain.RoleUser {
		t.Fatalf("unexpected defaults: %+v", user)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalised: %s", user.Email)
	}
	if user.Salt == "" || user.HashedMnemonic == nil || *user.HashedMnemonic == "abandon ability able" {
		t.Fatalf("secrets not hashed: %+v", user)
	}
	if !CheckPassword(user, "correct-horse") || CheckPassword(user, "wrong-horse") {
		t.Fatalf("password check mismatch")
	}

	stored, err := svc.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Email != user.Email {
		t.Fatalf("stored user differs: %+v", stored)
	}
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	svc := NewService(store.NewMemory(time.Second))
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{NationalID: 1, Email: "a@example.com"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{NationalID: 2, Email: "a@example.com"}); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{NationalID: 3, Email: "not-an-email"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{NationalID: 4, Email: "b@example.com", Password: "short"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHashNationalIDIsSalted(t *testing.T) {
	a := HashNationalID("salt-a", 1234)
	if a != HashNationalID("salt-a", 1234) {
		t.Fatalf("hash must be deterministic")
	}
	if a == HashNationalID("salt-b", 1234) {
		t.Fatalf("different salts must produce different hashes")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}
