/*
Package auth provides sign-up, sign-in, and bearer-credential resolution.

PURPOSE:
  Accounts are an email, a display name, and a bcrypt password hash.
  Signing up or in returns a Session: an HS256 JWT plus the user row.
  The Gate middleware turns an Authorization header back into a
  ledger.Actor for the rest of the request.

FAILURE MODES:
  SignUp:  malformed email, blank name, bad password length -> ErrInvalidArgument
           email taken                                     -> ErrAlreadyExists
  SignIn:  unknown email or wrong password                 -> ErrInvalidCredentials
  Gate:    anything wrong with the credential              -> ledger.Anonymous

  SignIn never says which half was wrong, and a lookup miss still pays for
  a bcrypt compare.

SEE ALSO:
  - gate.go: HTTP middleware
  - api/resolver.go: signUp / signIn mutations
*/
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/warp/fintrack/ledger"
)

// Session is what a successful sign-up or sign-in returns.
type Session struct {
	Token string
	User  ledger.User
}

type Service struct {
	Users     ledger.UserStore
	Tokens    *Tokens
	Passwords *Passwords
	Logger    *slog.Logger
}

func NewService(users ledger.UserStore, tokens *Tokens, passwords *Passwords) *Service {
	return &Service{
		Users:     users,
		Tokens:    tokens,
		Passwords: passwords,
		Logger:    slog.Default(),
	}
}

// SignUp creates an account and returns a session for it.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (Session, error) {
	email = ledger.NormalizeEmail(email)
	if err := ledger.ValidateEmail(email); err != nil {
		return Session{}, &ledger.ValidationError{Field: "email", Reason: err.Error()}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, &ledger.ValidationError{Field: "name", Reason: "required"}
	}

	hash, err := s.Passwords.Hash(password)
	if err != nil {
		return Session{}, err
	}

	u, err := s.Users.CreateUser(ctx, ledger.User{Email: email, Name: name, PasswordHash: hash})
	if err != nil {
		return Session{}, ledger.Storage("create user", err)
	}

	s.logger().InfoContext(ctx, "User signed up", "user_id", u.ID)
	return s.session(u)
}

// SignIn checks the credentials and returns a fresh session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := s.Users.GetUserByEmail(ctx, ledger.NormalizeEmail(email))
	if errors.Is(err, ledger.ErrNotFound) {
		s.Passwords.Burn(password)
		return Session{}, ledger.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, ledger.Storage("get user", err)
	}

	if !s.Passwords.Matches(u.PasswordHash, password) {
		return Session{}, ledger.ErrInvalidCredentials
	}
	return s.session(u)
}

// Resolve maps a raw bearer credential to an actor. Any failure yields
// ledger.Anonymous.
func (s *Service) Resolve(raw string) ledger.Actor {
	if raw == "" {
		return ledger.Anonymous
	}
	id, err := s.Tokens.Verify(raw)
	if err != nil {
		return ledger.Anonymous
	}
	return ledger.ActorFor(id)
}

func (s *Service) session(u ledger.User) (Session, error) {
	token, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: u}, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
