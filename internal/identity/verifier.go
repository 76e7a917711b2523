package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parishdesk/internal/config"
	"parishdesk/internal/store"
)

type ProfileLookupFunc func(ctx context.Context, profileID string) (store.Profile, error)

// Service verifies session tokens and resolves profile rows. The session
// token is an HS256 JWT minted by the hosted auth platform; the subject claim
// is the profile id.
type Service struct {
	Config        config.Config
	Store         *store.Store
	Now           func() time.Time
	LookupProfile ProfileLookupFunc
}

func NewService(cfg config.Config, st *store.Store) *Service {
	svc := &Service{
		Config: cfg,
		Store:  st,
		Now:    func() time.Time { return time.Now().UTC() },
	}
	if st != nil {
		svc.LookupProfile = st.GetProfile
	}
	return svc
}

func (s *Service) CurrentPrincipal(ctx context.Context, r *http.Request) (Principal, Session, error) {
	cookie, err := r.Cookie(s.Config.Auth.SessionCookie)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return Principal{}, Session{}, ErrUnauthorized
	}
	session, err := s.VerifySessionToken(cookie.Value)
	if err != nil {
		return Principal{}, Session{}, err
	}
	principal, err := s.GetPrincipal(ctx, session.PrincipalID)
	if err != nil {
		return Principal{}, Session{}, err
	}
	return principal, session, nil
}

func (s *Service) VerifySessionToken(rawToken string) (Session, error) {
	signingKey := []byte(s.Config.Auth.TokenSigningKey)
	if len(signingKey) == 0 {
		return Session{}, fmt.Errorf("%w: token signing key not configured", ErrUnauthorized)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.Now),
	}
	if iss := strings.TrimSpace(s.Config.Auth.Issuer); iss != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(s.Config.Auth.Audience); aud != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(aud))
	}

	parsed, err := jwt.Parse(strings.TrimSpace(rawToken), func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return Session{}, ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, ErrUnauthorized
	}
	subject := claimString(claims["sub"])
	if subject == "" {
		return Session{}, ErrUnauthorized
	}

	session := Session{
		Token:       strings.TrimSpace(rawToken),
		PrincipalID: subject,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpiresAt = exp.Time
	}
	return session, nil
}

func (s *Service) GetPrincipal(ctx context.Context, principalID string) (Principal, error) {
	if principalID == "" || s.LookupProfile == nil {
		return Principal{}, ErrUnauthorized
	}
	profile, err := s.LookupProfile(ctx, principalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return Principal{
		ID:         profile.ID,
		Email:      profile.Email,
		Superadmin: profile.Superadmin,
	}, nil
}

func claimString(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	default:
		return ""
	}
}
