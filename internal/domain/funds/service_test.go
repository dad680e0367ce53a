package funds_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mwork/mwork-rewards/internal/domain/funds"
	"github.com/mwork/mwork-rewards/internal/pkg/testdb"
)

func TestCreditTxRejectsBadInput(t *testing.T) {
	svc := funds.NewService(nil)
	userID := uuid.New()

	if err := svc.CreditTx(context.Background(), nil, userID, 0, funds.TransactionTypeCashback, "cashback:x", ""); !errors.Is(err, funds.ErrInvalidCredit) {
		t.Fatalf("expected ErrInvalidCredit for zero amount, got %v", err)
	}
	if err := svc.CreditTx(context.Background(), nil, userID, 10, funds.TransactionTypeCashback, "", ""); !errors.Is(err, funds.ErrInvalidCredit) {
		t.Fatalf("expected ErrInvalidCredit for empty reference, got %v", err)
	}
}

func TestCashbackCreditIsIdempotentAndTransactional(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	svc := funds.NewService(funds.NewRepository(db))
	userID := uuid.New()
	ref := "cashback:" + uuid.NewString()

	credit := func(amount int64, commit bool) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			t.Fatalf("begin failed: %v", err)
		}
		defer tx.Rollback()
		if err := svc.CreditTx(ctx, tx, userID, amount, funds.TransactionTypeCashback, ref, "cashback redemption"); err != nil {
			return err
		}
		if commit {
			return tx.Commit()
		}
		return nil
	}

	if err := credit(1500, false); err != nil {
		t.Fatalf("uncommitted credit failed: %v", err)
	}
	if balance, _ := svc.GetBalance(ctx, userID); balance != 0 {
		t.Fatalf("rolled back credit must leave 0, got %d", balance)
	}

	if err := credit(1500, true); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if err := credit(1500, true); err != nil {
		t.Fatalf("replay must be a no-op, got %v", err)
	}
	if err := credit(1600, true); !errors.Is(err, funds.ErrReferenceConflict) {
		t.Fatalf("expected ErrReferenceConflict, got %v", err)
	}

	summary, err := svc.GetSummary(ctx, userID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Balance != 1500 || len(summary.Recent) != 1 || *summary.Recent[0].ReferenceID != ref {
		t.Fatalf("expected a single 1500 credit, got %+v", summary)
	}
}
