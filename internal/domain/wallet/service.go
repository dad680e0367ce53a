package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service exposes read access to the wallet store.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// GetOrCreateWallet is an idempotent read-or-create.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

// GetSummary returns the wallet and its branded sub-balances.
func (s *Service) GetSummary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	w, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	branded, err := s.repo.ListBranded(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Wallet: w, Branded: branded, Drifting: Drifting(w, branded)}
	if summary.Drifting {
		log.Debug().
			Str("user_id", userID.String()).
			Int64("branded_coins", w.BrandedCoins).
			Msg("branded sub-balances do not reconcile with wallet aggregate")
	}
	return summary, nil
}
