package cashback

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mwork/mwork-rewards/internal/pkg/logger"
	"github.com/mwork/mwork-rewards/internal/pkg/metadata"
	"github.com/mwork/mwork-rewards/internal/pkg/money"
)

// Ledger is the transactional store behind the cashback ledger.
type Ledger interface {
	CreatePending(ctx context.Context, draft *Transaction) error
	Credit(ctx context.Context, id uuid.UUID, now time.Time) (*Transaction, error)
	Redeem(ctx context.Context, draft *Transaction) error
	Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*Transaction, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]Transaction, error)
	List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Transaction, error)
}

type Config struct {
	PendingDays int
	Now         func() time.Time
}

type Service struct {
	ledger Ledger
	cfg    Config
}

func NewService(ledger Ledger, cfg Config) *Service {
	if cfg.PendingDays <= 0 {
		cfg.PendingDays = DefaultPendingDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{ledger: ledger, cfg: cfg}
}

// EarnCashback records cashback as PENDING. The usable balance is untouched
// until the entry is credited.
func (s *Service) EarnCashback(ctx context.Context, req EarnRequest) (*Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.PendingDays != nil && *req.PendingDays < 0 {
		return nil, ErrInvalidPendingDays
	}
	if req.CashbackRate != nil && !money.ValidRate(*req.CashbackRate) {
		return nil, ErrInvalidRate
	}

	days := s.cfg.PendingDays
	if req.PendingDays != nil {
		days = *req.PendingDays
	}

	now := s.cfg.Now()
	pendingUntil := now.AddDate(0, 0, days)
	draft := &Transaction{
		ID:           uuid.New(),
		UserID:       req.UserID,
		Type:         TransactionTypeEarn,
		Amount:       req.Amount,
		AmountAED:    money.ToAED(req.Amount),
		OrderID:      strPtr(req.OrderID),
		ProductID:    strPtr(req.ProductID),
		Description:  req.Description,
		Status:       StatusPending,
		PendingUntil: &pendingUntil,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.CashbackRate != nil {
		draft.CashbackRate.Decimal = *req.CashbackRate
		draft.CashbackRate.Valid = true
	}

	if err := s.ledger.CreatePending(ctx, draft); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", req.UserID.String()).
		Int64("amount", req.Amount).
		Str("order_id", req.OrderID).
		Time("pending_until", pendingUntil).
		Str("transaction_id", draft.ID.String()).
		Msg("cashback pending")
	return draft, nil
}

// CreditCashback makes one PENDING entry spendable.
func (s *Service) CreditCashback(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := s.ledger.Credit(ctx, id, s.cfg.Now())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", t.UserID.String()).
		Int64("amount", t.Amount).
		Str("transaction_id", id.String()).
		Msg("cashback credited")
	return t, nil
}

// CreditCashbackByOrderID credits every PENDING entry of an order. Each entry
// commits on its own and failures are collected, not returned.
func (s *Service) CreditCashbackByOrderID(ctx context.Context, orderID string) (*BatchResult, error) {
	txs, err := s.ledger.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{OrderID: orderID}
	for _, t := range txs {
		if t.Status != StatusPending {
			continue
		}
		credited, err := s.CreditCashback(ctx, t.ID)
		if err != nil {
			result.Failures = append(result.Failures, ItemFailure{TransactionID: t.ID, Error: err.Error()})
			logger.LogError(ctx, err, "cashback credit failed", "transaction_id", t.ID.String(), "order_id", orderID)
			continue
		}
		result.Succeeded = append(result.Succeeded, credited.ID)
		result.Amount += credited.Amount
	}
	return result, nil
}

// RedeemCashback transfers credited cashback into the user's funds wallet.
// The balance is checked inside the ledger transaction.
func (s *Service) RedeemCashback(ctx context.Context, userID uuid.UUID, amount int64, description string) (*Transaction, error) {
	if amount < MinRedemptionFils {
		return nil, ErrBelowMinimum
	}
	if description == "" {
		description = "cashback redemption"
	}

	now := s.cfg.Now()
	draft := &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        TransactionTypeRedeem,
		Amount:      -amount,
		AmountAED:   money.ToAED(-amount),
		Description: description,
		Status:      StatusRedeemed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	draft.Metadata = metadata.Metadata{"funds_reference": FundsReference(draft.ID)}

	if err := s.ledger.Redeem(ctx, draft); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Int64("balance_after", draft.BalanceAfter).
		Str("transaction_id", draft.ID.String()).
		Msg("cashback redeemed")
	return draft, nil
}

// CancelCashback cancels one PENDING entry.
func (s *Service) CancelCashback(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := s.ledger.Cancel(ctx, id, s.cfg.Now())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", t.UserID.String()).
		Int64("amount", t.Amount).
		Str("transaction_id", id.String()).
		Msg("cashback cancelled")
	return t, nil
}

// CancelCashbackByOrderID cancels every PENDING entry of an order.
// An order without entries is ErrTransactionNotFound; an order whose entries
// are all past PENDING is ErrInvalidState.
func (s *Service) CancelCashbackByOrderID(ctx context.Context, orderID string) (*BatchResult, error) {
	txs, err := s.ledger.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrTransactionNotFound
	}

	result := &BatchResult{OrderID: orderID}
	pending := 0
	for _, t := range txs {
		if t.Status != StatusPending {
			continue
		}
		pending++

		cancelled, err := s.CancelCashback(ctx, t.ID)
		if err != nil {
			result.Failures = append(result.Failures, ItemFailure{TransactionID: t.ID, Error: err.Error()})
			logger.LogError(ctx, err, "cashback cancel failed", "transaction_id", t.ID.String(), "order_id", orderID)
			continue
		}
		result.Succeeded = append(result.Succeeded, cancelled.ID)
		result.Amount += cancelled.Amount
	}
	if pending == 0 {
		return nil, ErrInvalidState
	}
	return result, nil
}

// ExpireCashback moves overdue PENDING entries to EXPIRED.
func (s *Service) ExpireCashback(ctx context.Context) (int64, error) {
	n, err := s.ledger.ExpirePending(ctx, s.cfg.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.FromContext(ctx).Info().Int64("expired", n).Msg("pending cashback expired")
	}
	return n, nil
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.ledger.GetByID(ctx, id)
}

// ListTransactions returns a user's cashback history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Transaction, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.ledger.List(ctx, userID, filter)
}

// IsBusinessError reports whether err is an expected ledger outcome rather
// than an infrastructure failure.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInsufficientBalance, ErrInvalidRate, ErrInvalidPendingDays,
		ErrBelowMinimum, ErrTransactionNotFound, ErrInvalidState,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
