package auth

import (
	"context"

	"interview-room/dto"
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*dto.LoginResponse, error)
}

// Login exchanges email and password for a credential and installs it in s.
func (s *Session) Login(ctx context.Context, authenticator Authenticator, email, password string) (Credential, error) {
	resp, err := authenticator.Login(ctx, email, password)
	if err != nil {
		return Credential{}, err
	}
	cred := Credential{
		AccessToken: resp.AccessToken,
		UserID:      resp.UserID,
		Role:        resp.Role,
		FullName:    resp.FullName,
	}
	if err := s.Set(ctx, cred); err != nil {
		return Credential{}, err
	}
	cred, _ = s.Credential()
	return cred, nil
}
