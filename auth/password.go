package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/warp/fintrack/ledger"
)

const (
	MinPasswordLen = 8
	// MaxPasswordLen is bcrypt's input limit; longer passwords would be
	// silently truncated.
	MaxPasswordLen = 72
)

// Passwords hashes and checks passwords with bcrypt.
type Passwords struct {
	Cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewPasswords(cost int) *Passwords {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Passwords{Cost: cost}
}

// Hash validates the length of password and returns its bcrypt hash.
func (p *Passwords) Hash(password string) (string, error) {
	if err := checkPasswordLength(password); err != nil {
		return "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Matches reports whether password hashes to hash.
func (p *Passwords) Matches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Burn runs a compare against a fixed hash so a lookup miss costs the same
// as a wrong password.
func (p *Passwords) Burn(password string) {
	p.dummyOnce.Do(func() {
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte("fintrack-dummy-password"), p.Cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(password))
}

func checkPasswordLength(password string) error {
	switch {
	case len(password) < MinPasswordLen:
		return &ledger.ValidationError{Field: "password", Reason: "must be at least 8 bytes"}
	case len(password) > MaxPasswordLen:
		return &ledger.ValidationError{Field: "password", Reason: "must be at most 72 bytes"}
	}
	return nil
}

// ValidCost reports whether cost is usable by bcrypt.
func ValidCost(cost int) bool {
	return cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost
}
