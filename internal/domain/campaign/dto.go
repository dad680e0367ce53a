package campaign

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/mwork-rewards/internal/domain/wallet"
	"github.com/mwork/mwork-rewards/internal/pkg/metadata"
	"github.com/mwork/mwork-rewards/internal/pkg/money"
	"github.com/mwork/mwork-rewards/internal/pkg/validator"
)

// CreateRequest for creating a campaign. Amounts are in Fils or coins.
type CreateRequest struct {
	Name                  string            `json:"name" validate:"required,min=3,max=255"`
	Description           string            `json:"description" validate:"max=2000"`
	Type                  string            `json:"type" validate:"required,campaign_type"`
	CoinType              string            `json:"coin_type" validate:"omitempty,coin_type"`
	CoinAmount            *int64            `json:"coin_amount" validate:"omitempty,gt=0"`
	CashbackRate          *decimal.Decimal  `json:"cashback_rate"`
	MinPurchaseAmount     *int64            `json:"min_purchase_amount" validate:"omitempty,gte=0"`
	BrandIDs              []string          `json:"brand_ids" validate:"omitempty,dive,required,max=64"`
	ProductIDs            []string          `json:"product_ids" validate:"omitempty,dive,required,max=64"`
	UserSegment           string            `json:"user_segment" validate:"user_segment"`
	StartDate             time.Time         `json:"start_date" validate:"required"`
	EndDate               time.Time         `json:"end_date" validate:"required"`
	MaxRedemptions        *int              `json:"max_redemptions" validate:"omitempty,gt=0"`
	MaxRedemptionsPerUser *int              `json:"max_redemptions_per_user" validate:"omitempty,gt=0"`
	Metadata              metadata.Metadata `json:"metadata"`
}

// UpdateRequest for updating a campaign. Nil fields are left unchanged.
// Setting one reward field clears the other.
type UpdateRequest struct {
	Name                  *string           `json:"name" validate:"omitempty,min=3,max=255"`
	Description           *string           `json:"description" validate:"omitempty,max=2000"`
	CoinType              *string           `json:"coin_type" validate:"omitempty,coin_type"`
	CoinAmount            *int64            `json:"coin_amount" validate:"omitempty,gt=0"`
	CashbackRate          *decimal.Decimal  `json:"cashback_rate"`
	MinPurchaseAmount     *int64            `json:"min_purchase_amount" validate:"omitempty,gte=0"`
	BrandIDs              []string          `json:"brand_ids" validate:"omitempty,dive,required,max=64"`
	ProductIDs            []string          `json:"product_ids" validate:"omitempty,dive,required,max=64"`
	UserSegment           *string           `json:"user_segment" validate:"omitempty,user_segment"`
	StartDate             *time.Time        `json:"start_date"`
	EndDate               *time.Time        `json:"end_date"`
	MaxRedemptions        *int              `json:"max_redemptions" validate:"omitempty,gt=0"`
	MaxRedemptionsPerUser *int              `json:"max_redemptions_per_user" validate:"omitempty,gt=0"`
	IsActive              *bool             `json:"is_active"`
	Metadata              metadata.Metadata `json:"metadata"`
}

// ToCampaign builds a new active campaign from the request.
func (r *CreateRequest) ToCampaign(now time.Time) *Campaign {
	c := &Campaign{
		ID:                    uuid.New(),
		Name:                  strings.TrimSpace(r.Name),
		Description:           r.Description,
		Type:                  Type(r.Type),
		CoinAmount:            r.CoinAmount,
		MinPurchaseAmount:     r.MinPurchaseAmount,
		BrandIDs:              nonNil(r.BrandIDs),
		ProductIDs:            nonNil(r.ProductIDs),
		StartDate:             r.StartDate,
		EndDate:               r.EndDate,
		MaxRedemptions:        r.MaxRedemptions,
		MaxRedemptionsPerUser: defaultPerUserRedemptions,
		IsActive:              true,
		Metadata:              r.Metadata,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if r.CoinType != "" {
		ct := wallet.CoinType(r.CoinType)
		c.CoinType = &ct
	}
	if r.CashbackRate != nil {
		c.CashbackRate = decimal.NewNullDecimal(*r.CashbackRate)
	}
	if r.UserSegment != "" {
		seg := Segment(r.UserSegment)
		c.UserSegment = &seg
	}
	if r.MaxRedemptionsPerUser != nil {
		c.MaxRedemptionsPerUser = *r.MaxRedemptionsPerUser
	}
	return c
}

// ApplyTo merges the request into c.
func (r *UpdateRequest) ApplyTo(c *Campaign, now time.Time) {
	if r.Name != nil {
		c.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		c.Description = *r.Description
	}
	if r.CoinType != nil {
		if *r.CoinType == "" {
			c.CoinType = nil
		} else {
			ct := wallet.CoinType(*r.CoinType)
			c.CoinType = &ct
		}
	}
	if r.CoinAmount != nil && r.CashbackRate == nil {
		c.CashbackRate = decimal.NullDecimal{}
	}
	if r.CashbackRate != nil && r.CoinAmount == nil {
		c.CoinAmount = nil
	}
	if r.CoinAmount != nil {
		c.CoinAmount = r.CoinAmount
	}
	if r.CashbackRate != nil {
		c.CashbackRate = decimal.NewNullDecimal(*r.CashbackRate)
	}
	if r.MinPurchaseAmount != nil {
		c.MinPurchaseAmount = r.MinPurchaseAmount
	}
	if r.BrandIDs != nil {
		c.BrandIDs = r.BrandIDs
	}
	if r.ProductIDs != nil {
		c.ProductIDs = r.ProductIDs
	}
	if r.UserSegment != nil {
		if *r.UserSegment == "" {
			c.UserSegment = nil
		} else {
			seg := Segment(*r.UserSegment)
			c.UserSegment = &seg
		}
	}
	if r.StartDate != nil {
		c.StartDate = *r.StartDate
	}
	if r.EndDate != nil {
		c.EndDate = *r.EndDate
	}
	if r.MaxRedemptions != nil {
		c.MaxRedemptions = r.MaxRedemptions
	}
	if r.MaxRedemptionsPerUser != nil {
		c.MaxRedemptionsPerUser = *r.MaxRedemptionsPerUser
	}
	if r.IsActive != nil {
		c.IsActive = *r.IsActive
	}
	if r.Metadata != nil {
		c.Metadata = r.Metadata
	}
	c.UpdatedAt = now
}

// validateRequest runs tag validation and returns field errors or nil.
func validateRequest(req interface{}) error {
	if errs := validator.Validate(req); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// validateCampaign checks the rules that span several fields.
func validateCampaign(c *Campaign) error {
	fields := map[string]string{}

	if !c.StartDate.Before(c.EndDate) {
		fields["end_date"] = "Must be after start_date"
	}

	hasCoins := c.CoinAmount != nil
	hasRate := c.CashbackRate.Valid
	switch {
	case hasCoins && hasRate:
		fields["coin_amount"] = "Set either coin_amount or cashback_rate, not both"
	case !hasCoins && !hasRate:
		fields["coin_amount"] = "One of coin_amount or cashback_rate is required"
	case hasCoins && *c.CoinAmount <= 0:
		fields["coin_amount"] = "Value must be greater than 0"
	case hasRate && !money.ValidRate(c.CashbackRate.Decimal):
		fields["cashback_rate"] = "Value must be between 0 and 100"
	}

	if c.CoinType != nil && !c.CoinType.Valid() {
		fields["coin_type"] = "Invalid coin type"
	}
	// Branded coins land in one brand sub-balance.
	if hasCoins && c.RewardCoinType() == wallet.CoinTypeBranded && len(c.BrandIDs) != 1 {
		fields["brand_ids"] = "Branded coin campaigns must name exactly one brand"
	}
	if c.MaxRedemptionsPerUser <= 0 {
		fields["max_redemptions_per_user"] = "Value must be greater than 0"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
