package wallet

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func newWallet() *Wallet {
	return &Wallet{UserID: uuid.New()}
}

func TestApplyEarnThenRedeemRestoresBalance(t *testing.T) {
	w := newWallet()
	w.UniversalCoins = 40

	before, after, err := w.ApplyEarn(CoinTypeUniversal, 100)
	if err != nil {
		t.Fatalf("earn failed: %v", err)
	}
	if before != 40 || after != 140 {
		t.Fatalf("expected 40 -> 140, got %d -> %d", before, after)
	}

	before, after, err = w.ApplyRedeem(CoinTypeUniversal, 100)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if before != 140 || after != 40 {
		t.Fatalf("expected 140 -> 40, got %d -> %d", before, after)
	}
	if w.TotalCoinsEarned != 100 || w.TotalCoinsRedeemed != 100 {
		t.Fatalf("unexpected totals earned=%d redeemed=%d", w.TotalCoinsEarned, w.TotalCoinsRedeemed)
	}
}

func TestApplyRedeemInsufficient(t *testing.T) {
	w := newWallet()
	w.PromoCoins = 10

	_, _, err := w.ApplyRedeem(CoinTypePromo, 11)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if w.PromoCoins != 10 || w.TotalCoinsRedeemed != 0 {
		t.Fatal("failed redeem must not mutate the wallet")
	}
}

func TestApplyRejectsBadInput(t *testing.T) {
	w := newWallet()

	if _, _, err := w.ApplyEarn(CoinTypeBranded, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := w.ApplyEarn(CoinType("GOLD"), 5); !errors.Is(err, ErrInvalidCoinType) {
		t.Fatalf("expected ErrInvalidCoinType, got %v", err)
	}
	if _, _, err := w.ApplyRedeem(CoinTypeBranded, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestApplyExpiryNeverNegative(t *testing.T) {
	w := newWallet()
	w.BrandedCoins = 30

	before, after, deducted, err := w.ApplyExpiry(CoinTypeBranded, 50)
	if err != nil {
		t.Fatalf("expiry failed: %v", err)
	}
	if before != 30 || after != 0 || deducted != 30 {
		t.Fatalf("expected 30 -> 0 deducting 30, got %d -> %d deducting %d", before, after, deducted)
	}

	_, after, deducted, _ = w.ApplyExpiry(CoinTypeBranded, 50)
	if after != 0 || deducted != 0 {
		t.Fatalf("expected no further deduction, got after=%d deducted=%d", after, deducted)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("wallet invalid after expiry: %v", err)
	}
}

func TestCashbackCreditAndRedeem(t *testing.T) {
	w := newWallet()

	if _, _, err := w.ApplyCashbackCredit(5000); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if w.CashbackBalance != 5000 || w.LifetimeCashbackEarned != 5000 {
		t.Fatalf("expected 5000/5000, got %d/%d", w.CashbackBalance, w.LifetimeCashbackEarned)
	}

	if _, _, err := w.ApplyCashbackRedeem(6000); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	before, after, err := w.ApplyCashbackRedeem(1000)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if before != 5000 || after != 4000 {
		t.Fatalf("expected 5000 -> 4000, got %d -> %d", before, after)
	}
	if w.LifetimeCashbackEarned != 5000 {
		t.Fatal("redemption must not touch lifetime earned")
	}
}

func TestBrandedBalance(t *testing.T) {
	b := &BrandedCoinBalance{Balance: 300, LifetimeEarned: 300}

	if err := b.Redeem(301); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := b.Redeem(100); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if b.Balance != 200 || b.LifetimeRedeemed != 100 {
		t.Fatalf("unexpected balance=%d redeemed=%d", b.Balance, b.LifetimeRedeemed)
	}
	if got := b.Expire(500); got != 200 || b.Balance != 0 {
		t.Fatalf("expected to expire 200 leaving 0, got %d leaving %d", got, b.Balance)
	}
}

func TestDrifting(t *testing.T) {
	w := newWallet()
	w.BrandedCoins = 300
	branded := []BrandedCoinBalance{{Balance: 200}, {Balance: 100}}

	if Drifting(w, branded) {
		t.Fatal("expected reconciled balances")
	}
	w.BrandedCoins = 250
	if !Drifting(w, branded) {
		t.Fatal("expected drift")
	}
}

func TestValidate(t *testing.T) {
	w := newWallet()
	if err := w.Validate(); err != nil {
		t.Fatalf("empty wallet should be valid: %v", err)
	}
	w.CashbackBalance = -1
	if !errors.Is(w.Validate(), ErrNegativeBalance) {
		t.Fatal("expected ErrNegativeBalance")
	}
}
