package coin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mwork/mwork-rewards/internal/domain/wallet"
	"github.com/mwork/mwork-rewards/internal/pkg/logger"
)

const (
	defaultBatchSize         = 500
	defaultBrandedExpiryDays = 365
)

// Ledger is the transactional store behind the coin ledger.
type Ledger interface {
	Earn(ctx context.Context, draft *Transaction, brand *wallet.BrandInfo) error
	Redeem(ctx context.Context, draft *Transaction) error
	ListExpirable(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]Transaction, error)
	Expire(ctx context.Context, earnID, expireID uuid.UUID, now time.Time) (*Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Transaction, error)
}

// WalletReader gives non-locking access to balances for advisory checks.
type WalletReader interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error)
	GetBranded(ctx context.Context, userID uuid.UUID, brandID string) (*wallet.BrandedCoinBalance, error)
}

// Config tunes the service. Zero values fall back to defaults.
type Config struct {
	BatchSize         int
	BrandedExpiryDays int
	Now               func() time.Time
}

type Service struct {
	ledger  Ledger
	wallets WalletReader
	cfg     Config
}

func NewService(ledger Ledger, wallets WalletReader, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BrandedExpiryDays <= 0 {
		cfg.BrandedExpiryDays = defaultBrandedExpiryDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{ledger: ledger, wallets: wallets, cfg: cfg}
}

// EarnCoins credits coins and records the EARN entry atomically.
// Branded coins always expire; without ExpiresInDays the configured default applies.
func (s *Service) EarnCoins(ctx context.Context, req EarnRequest) (*Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !req.CoinType.Valid() {
		return nil, ErrInvalidCoinType
	}
	if req.ExpiresInDays != nil && *req.ExpiresInDays <= 0 {
		return nil, ErrInvalidExpiry
	}
	if req.Brand != nil && strings.TrimSpace(req.Brand.BrandID) == "" {
		return nil, ErrInvalidBrand
	}
	if req.CoinType != wallet.CoinTypeBranded {
		req.Brand = nil
	}

	now := s.cfg.Now()
	draft := &Transaction{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Type:        TransactionTypeEarn,
		CoinType:    req.CoinType,
		Amount:      req.Amount,
		Reason:      orDefault(req.Reason, ReasonPurchase),
		Description: req.Description,
		Status:      StatusCompleted,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		References:  req.References,
	}
	if req.Brand != nil {
		brandID := req.Brand.BrandID
		draft.BrandID = &brandID
	}

	days := 0
	switch {
	case req.ExpiresInDays != nil:
		days = *req.ExpiresInDays
	case req.CoinType == wallet.CoinTypeBranded:
		days = s.cfg.BrandedExpiryDays
	}
	if days > 0 {
		expiresAt := now.AddDate(0, 0, days)
		draft.ExpiresAt = &expiresAt
	}

	if err := s.ledger.Earn(ctx, draft, req.Brand); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", req.UserID.String()).
		Str("coin_type", string(req.CoinType)).
		Int64("amount", req.Amount).
		Int64("balance_after", draft.BalanceAfter).
		Str("transaction_id", draft.ID.String()).
		Msg("coins earned")
	return draft, nil
}

// RedeemCoins debits coins. The balance is re-checked inside the ledger transaction,
// so a prior CheckRedemption result is never trusted.
func (s *Service) RedeemCoins(ctx context.Context, req RedeemRequest) (*Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !req.CoinType.Valid() {
		return nil, ErrInvalidCoinType
	}

	draft := &Transaction{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Type:        TransactionTypeRedeem,
		CoinType:    req.CoinType,
		Amount:      -req.Amount,
		Reason:      orDefault(req.RedemptionType, ReasonCheckout),
		Description: req.Description,
		Status:      StatusCompleted,
		Metadata:    req.Metadata,
		CreatedAt:   s.cfg.Now(),
		References:  req.References,
	}
	if req.CoinType == wallet.CoinTypeBranded && strings.TrimSpace(req.BrandID) != "" {
		brandID := req.BrandID
		draft.BrandID = &brandID
	}

	if err := s.ledger.Redeem(ctx, draft); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", req.UserID.String()).
		Str("coin_type", string(req.CoinType)).
		Int64("amount", req.Amount).
		Int64("balance_after", draft.BalanceAfter).
		Str("transaction_id", draft.ID.String()).
		Msg("coins redeemed")
	return draft, nil
}

// CheckRedemption is a read-only, non-reserving snapshot. When brandID is given for
// branded coins the brand sub-balance is what counts.
func (s *Service) CheckRedemption(ctx context.Context, userID uuid.UUID, coinType wallet.CoinType, amount int64, brandID string) (*RedemptionCheck, error) {
	if !coinType.Valid() {
		return nil, ErrInvalidCoinType
	}

	var available int64
	if coinType == wallet.CoinTypeBranded && strings.TrimSpace(brandID) != "" {
		b, err := s.wallets.GetBranded(ctx, userID, brandID)
		switch {
		case err == nil:
			available = b.Balance
		case !errors.Is(err, wallet.ErrBrandBalanceNotFound):
			return nil, err
		}
	} else {
		w, err := s.wallets.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		available = w.CoinBalance(coinType)
	}

	check := &RedemptionCheck{CanRedeem: amount > 0 && available >= amount, Available: available}
	if amount > available {
		check.Shortage = amount - available
	}
	return check, nil
}

// ExpireCoins sweeps expired earn entries. Each entry commits on its own; a failure
// is recorded and the sweep moves on. Failed entries stay COMPLETED and are retried
// by the next run.
func (s *Service) ExpireCoins(ctx context.Context) (*ExpiryReport, error) {
	now := s.cfg.Now()
	report := &ExpiryReport{}
	cursor := uuid.Nil

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch, err := s.ledger.ListExpirable(ctx, now, cursor, s.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			break
		}

		for _, earn := range batch {
			cursor = earn.ID
			report.Scanned++

			entry, err := s.ledger.Expire(ctx, earn.ID, uuid.New(), now)
			switch {
			case err == nil:
				report.Expired++
				report.CoinsRemoved += -entry.Amount
			case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrNotExpired):
				report.Skipped++
			default:
				report.Failures = append(report.Failures, ItemFailure{TransactionID: earn.ID, Error: err.Error()})
				logger.LogError(ctx, err, "coin expiry failed", "transaction_id", earn.ID.String(), "user_id", earn.UserID.String())
			}
		}

		if len(batch) < s.cfg.BatchSize {
			break
		}
	}

	if report.Expired > 0 || len(report.Failures) > 0 {
		logger.FromContext(ctx).Info().
			Int("scanned", report.Scanned).
			Int("expired", report.Expired).
			Int("failed", len(report.Failures)).
			Int64("coins_removed", report.CoinsRemoved).
			Msg("coin expiry sweep finished")
	}
	return report, nil
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.ledger.GetByID(ctx, id)
}

// ListTransactions returns a user's coin history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Transaction, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.ledger.List(ctx, userID, filter)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
