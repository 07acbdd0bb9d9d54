package challenge

import (
	"context"
	"time"

	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
)

// DefaultTTL bounds how long a pending authorization stays answerable.
const DefaultTTL = 10 * time.Minute

// Service stores HTTP-01 challenge answers in the shared database so
// any node can answer a validation request regardless of which node
// started the order.
type Service struct {
	store storage.Store
	ttl   time.Duration
}

// NewService creates the challenge store
func NewService(store storage.Store, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl}
}

// Put records a challenge answer, replacing any previous answer for
// the same token.
func (s *Service) Put(ctx context.Context, token, keyAuth, domain string) error {
	if token == "" {
		return types.NewValidation("token must not be empty")
	}
	if keyAuth == "" {
		return types.NewValidation("key authorization must not be empty")
	}
	ch := &types.AcmeChallenge{
		Token:     token,
		KeyAuth:   keyAuth,
		Domain:    domain,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.store.CreateChallenge(ctx, ch); err != nil {
		return err
	}
	log.WithComponent("challenge").Debug().
		Str("token", token).
		Str("domain", domain).
		Msg("challenge stored")
	return nil
}

// Answer returns the key authorization for a token. Expired rows are
// deleted on read and reported as not found.
func (s *Service) Answer(ctx context.Context, token string) (string, error) {
	ch, err := s.store.GetChallenge(ctx, token)
	if err != nil {
		return "", err
	}
	if time.Now().After(ch.ExpiresAt) {
		if err := s.store.DeleteChallenge(ctx, token); err != nil {
			log.WithComponent("challenge").Warn().Err(err).
				Str("token", token).
				Msg("failed to delete expired challenge")
		}
		return "", types.NewNotFound("challenge", token)
	}
	return ch.KeyAuth, nil
}

// Delete removes a challenge once validation completes
func (s *Service) Delete(ctx context.Context, token string) error {
	return s.store.DeleteChallenge(ctx, token)
}

// PurgeExpired removes all rows past their expiry, returning the count
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredChallenges(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithComponent("challenge").Debug().Int("count", n).Msg("expired challenges purged")
	}
	return n, nil
}
