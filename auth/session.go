package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"interview-room/storage"
)

const credentialKey = "auth/credential"

// Credential is the bearer token issued by the backend on login.
type Credential struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	FullName    string    `json:"full_name"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Claims are the fields the backend puts in its access tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Inspect reads the claims of a token without verifying its signature. The
// signing key stays on the server; the room only needs the expiry and role.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed access token: %w", err)
	}
	return claims, nil
}

// TerminateFunc is invoked once when the backend rejects the credential.
type TerminateFunc func(ctx context.Context, cause error)

// Session is the explicit credential context shared by every backend call.
type Session struct {
	store *storage.Store
	now   func() time.Time

	mu    sync.RWMutex
	cred  *Credential
	hooks []TerminateFunc
}

func NewSession(store *storage.Store) *Session {
	return &Session{store: store, now: time.Now}
}

// Load restores the persisted credential. An expired credential is dropped.
func (s *Session) Load(ctx context.Context) error {
	var cred Credential
	err := s.store.GetJSON(credentialKey, &cred)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cred.Expired(s.now()) {
		zerolog.Ctx(ctx).Info().Str("user_id", cred.UserID).Msg("stored credential expired")
		return s.store.Delete(credentialKey)
	}

	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()
	return nil
}

// Set installs and persists a fresh credential. Expiry is read from the token.
func (s *Session) Set(ctx context.Context, cred Credential) error {
	if cred.AccessToken == "" {
		return errors.New("empty access token")
	}
	if claims, err := Inspect(cred.AccessToken); err == nil {
		if exp := claims.ExpiresAt; exp != nil {
			cred.ExpiresAt = exp.Time
		}
		if cred.Role == "" {
			cred.Role = claims.Role
		}
		if cred.UserID == "" {
			cred.UserID = claims.Subject
		}
	} else {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("access token is not a readable jwt, expiry unknown")
	}

	if err := s.store.PutJSON(credentialKey, cred); err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()
	zerolog.Ctx(ctx).Info().Str("user_id", cred.UserID).Str("role", cred.Role).Msg("credential stored")
	return nil
}

// Credential returns the current credential, if any and not expired.
func (s *Session) Credential() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil || s.cred.Expired(s.now()) {
		return Credential{}, false
	}
	return *s.cred, true
}

func (s *Session) Token() string {
	cred, ok := s.Credential()
	if !ok {
		return ""
	}
	return cred.AccessToken
}

// Clear forgets the credential locally and on disk.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()
	return s.store.Delete(credentialKey)
}

// OnTerminate registers a hook run when the backend rejects the credential.
func (s *Session) OnTerminate(fn TerminateFunc) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Terminate clears the credential and fires the termination hooks. Repeated
// rejections of an already cleared credential fire nothing.
func (s *Session) Terminate(ctx context.Context, cause error) {
	s.mu.Lock()
	had := s.cred != nil
	s.cred = nil
	hooks := append([]TerminateFunc(nil), s.hooks...)
	s.mu.Unlock()

	if err := s.store.Delete(credentialKey); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to delete stored credential")
	}
	if !had {
		return
	}
	zerolog.Ctx(ctx).Warn().Err(cause).Msg("credential rejected, session terminated")
	for _, hook := range hooks {
		hook(ctx, cause)
	}
}
