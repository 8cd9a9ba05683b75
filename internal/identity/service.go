package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/store"
)

const (
	saltBytes         = 16
	minPasswordLength = 8
)

// Service manages user accounts.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a new identity service.
func NewService(s store.Store) *Service {
	return &Service{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Name          string
	NationalID    int64
	Email         string
	Password      string
	WalletAddress string
	DateOfBirth   *time.Time
	Role          domain.Role
	Mnemonic      string
}

// Register creates a pending user. Password and mnemonic are stored as
// bcrypt hashes, never in clear.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, domain.Invalid("email %q is not valid", in.Email)
	}
	if in.NationalID <= 0 {
		return domain.User{}, domain.Invalid("national id must be positive")
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return domain.User{}, domain.Invalid("unknown role %q", in.Role)
	}
	if in.Password != "" && len(in.Password) < minPasswordLength {
		return domain.User{}, domain.Invalid("password must be at least %d characters", minPasswordLength)
	}

	salt, err := newSalt()
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:          uuid.New().String(),
		NationalID:  in.NationalID,
		Salt:        salt,
		Email:       email,
		DateOfBirth: in.DateOfBirth,
		Role:        role,
		KYCStatus:   domain.KYCPending,
		CreatedAt:   s.now(),
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		user.Name = &name
	}
	if addr := strings.TrimSpace(in.WalletAddress); addr != "" {
		user.WalletAddress = &addr
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, err
		}
		h := string(hash)
		user.PasswordHash = &h
	}
	if in.Mnemonic != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Mnemonic), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, err
		}
		h := string(hash)
		user.HashedMnemonic = &h
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	return s.store.GetUser(ctx, id)
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(user domain.User, password string) bool {
	if user.PasswordHash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) == nil
}

// HashNationalID derives the salted digest recorded on KYC submissions.
func HashNationalID(salt string, nationalID int64) string {
	sum := sha256.Sum256([]byte(salt + ":" + strconv.FormatInt(nationalID, 10)))
	return hex.EncodeToString(sum[:])
}

func newSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
