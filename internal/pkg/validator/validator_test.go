package validator

import "testing"

type sample struct {
	Name     string `json:"name" validate:"required,max=10"`
	CoinType string `json:"coin_type" validate:"omitempty,coin_type"`
	Type     string `json:"type" validate:"required,campaign_type"`
	Segment  string `json:"user_segment" validate:"user_segment"`
	Amount   int64  `json:"amount" validate:"gte=0"`
}

func TestValidateCustomTags(t *testing.T) {
	ok := sample{Name: "spring", CoinType: "PROMO", Type: "SEASONAL", Segment: "vip"}
	if errs := Validate(ok); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}

	bad := sample{Name: "", CoinType: "GOLD", Type: "FLASH", Segment: "whale", Amount: -1}
	errs := Validate(bad)
	for _, field := range []string{"name", "coin_type", "type", "user_segment", "amount"} {
		if _, found := errs[field]; !found {
			t.Fatalf("expected error for %s, got %v", field, errs)
		}
	}
}

func TestEmptySegmentAllowed(t *testing.T) {
	if err := ValidateVar("", "user_segment"); err != nil {
		t.Fatalf("expected empty segment to pass, got %v", err)
	}
	if err := ValidateVar("returning", "user_segment"); err == nil {
		t.Fatal("expected unknown segment to fail")
	}
}
