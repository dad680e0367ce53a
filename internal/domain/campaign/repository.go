package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 5 * time.Second

const campaignColumns = `id, name, description, type, coin_type, coin_amount, cashback_rate,
	min_purchase_amount, brand_ids, product_ids, user_segment, start_date, end_date,
	max_redemptions, max_redemptions_per_user, total_redemptions, is_active, metadata,
	created_at, updated_at`

// DecideFunc inspects a locked campaign and the user's redemption count and
// returns the redemption to record, or an error to abort.
type DecideFunc func(c *Campaign, userRedemptions int) (*Redemption, error)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, c *Campaign) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO reward_campaigns (
			id, name, description, type, coin_type, coin_amount, cashback_rate,
			min_purchase_amount, brand_ids, product_ids, user_segment, start_date, end_date,
			max_redemptions, max_redemptions_per_user, total_redemptions, is_active, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
	`, c.ID, c.Name, c.Description, string(c.Type), c.CoinType, c.CoinAmount, c.CashbackRate,
		c.MinPurchaseAmount, c.BrandIDs, c.ProductIDs, c.UserSegment, c.StartDate, c.EndDate,
		c.MaxRedemptions, c.MaxRedemptionsPerUser, c.TotalRedemptions, c.IsActive, c.Metadata,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: create campaign: %v", ErrInternal, err)
	}
	return nil
}

// Update writes every admin-editable field. total_redemptions is owned by Redeem.
func (r *Repository) Update(ctx context.Context, c *Campaign) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE reward_campaigns
		SET name = $2,
			description = $3,
			coin_type = $4,
			coin_amount = $5,
			cashback_rate = $6,
			min_purchase_amount = $7,
			brand_ids = $8,
			product_ids = $9,
			user_segment = $10,
			start_date = $11,
			end_date = $12,
			max_redemptions = $13,
			max_redemptions_per_user = $14,
			is_active = $15,
			metadata = $16,
			updated_at = $17
		WHERE id = $1
	`, c.ID, c.Name, c.Description, c.CoinType, c.CoinAmount, c.CashbackRate,
		c.MinPurchaseAmount, c.BrandIDs, c.ProductIDs, c.UserSegment, c.StartDate, c.EndDate,
		c.MaxRedemptions, c.MaxRedemptionsPerUser, c.IsActive, c.Metadata, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: update campaign: %v", ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var c Campaign
	err := r.db.GetContext(ctx2, &c, `SELECT `+campaignColumns+` FROM reward_campaigns WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get campaign: %v", ErrInternal, err)
	}
	return &c, nil
}

// List returns campaigns newest first.
func (r *Repository) List(ctx context.Context, activeOnly bool, limit, offset int) ([]Campaign, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	campaigns := make([]Campaign, 0)
	err := r.db.SelectContext(ctx2, &campaigns, `
		SELECT `+campaignColumns+`
		FROM reward_campaigns
		WHERE ($1 = false OR is_active = true)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, activeOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list campaigns: %v", ErrInternal, err)
	}
	return campaigns, nil
}

// ListRunning returns active campaigns whose window contains now.
func (r *Repository) ListRunning(ctx context.Context, now time.Time) ([]Campaign, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	campaigns := make([]Campaign, 0)
	err := r.db.SelectContext(ctx2, &campaigns, `
		SELECT `+campaignColumns+`
		FROM reward_campaigns
		WHERE is_active = true
		  AND start_date <= $1
		  AND end_date >= $1
		ORDER BY end_date, id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("%w: list running campaigns: %v", ErrInternal, err)
	}
	return campaigns, nil
}

func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID, now time.Time) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE reward_campaigns SET is_active = false, updated_at = $2 WHERE id = $1
	`, id, now)
	if err != nil {
		return fmt.Errorf("%w: deactivate campaign: %v", ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// DeactivateEnded switches off every active campaign whose end date has passed.
func (r *Repository) DeactivateEnded(ctx context.Context, now time.Time) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE reward_campaigns
		SET is_active = false, updated_at = $1
		WHERE is_active = true AND end_date < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: deactivate ended campaigns: %v", ErrInternal, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repository) CountUserRedemptions(ctx context.Context, campaignID, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return countRedemptions(ctx2, r.db, campaignID, userID)
}

// Redeem locks the campaign row, lets decide re-check it against the user's
// redemption count, then records the redemption and bumps total_redemptions.
// Concurrent applies of one campaign serialize on the row lock, so caps hold.
func (r *Repository) Redeem(ctx context.Context, campaignID, userID uuid.UUID, decide DecideFunc) (*Redemption, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	var c Campaign
	err = tx.GetContext(ctx2, &c, `SELECT `+campaignColumns+` FROM reward_campaigns WHERE id = $1 FOR UPDATE`, campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock campaign: %v", ErrInternal, err)
	}

	used, err := countRedemptions(ctx2, tx, campaignID, userID)
	if err != nil {
		return nil, err
	}

	red, err := decide(&c, used)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx2, `
		INSERT INTO campaign_redemptions (id, campaign_id, user_id, reward_kind, amount, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, red.ID, campaignID, userID, string(red.RewardKind), red.Amount, red.OrderID, red.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: insert redemption: %v", ErrInternal, err)
	}

	if _, err := tx.ExecContext(ctx2, `
		UPDATE reward_campaigns
		SET total_redemptions = total_redemptions + 1, updated_at = $2
		WHERE id = $1
	`, campaignID, red.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: increment redemptions: %v", ErrInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return red, nil
}

func countRedemptions(ctx context.Context, q sqlx.QueryerContext, campaignID, userID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `
		SELECT COUNT(*) FROM campaign_redemptions WHERE campaign_id = $1 AND user_id = $2
	`, campaignID, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: count redemptions: %v", ErrInternal, err)
	}
	return n, nil
}
