package funds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const recentLimit = 10

// Store is what the service needs from persistence.
type Store interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error)
	CreditTx(ctx context.Context, tx *sqlx.Tx, t *Transaction) error
}

// Service credits the user's general-purpose AED wallet when cashback is redeemed.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.GetBalance(ctx, userID)
}

// ListTransactions returns credits newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, userID, limit, offset)
}

func (s *Service) GetSummary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.List(ctx, userID, recentLimit, 0)
	if err != nil {
		return nil, err
	}
	return &Summary{UserID: userID, Balance: balance, Recent: recent}, nil
}

// CreditTx credits amount inside tx without committing. The caller's
// transaction decides whether the credit becomes visible.
func (s *Service) CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, referenceID, description string) error {
	if amount <= 0 || referenceID == "" {
		return ErrInvalidCredit
	}
	return s.store.CreditTx(ctx, tx, &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		ReferenceID: &referenceID,
		Description: description,
		CreatedAt:   s.now(),
	})
}
