package postgres

import (
	"context"

	"github.com/atmsys/atm-backend/internal/models"
)

type cardsRepo struct{ q Querier }

const cardColumns = `id, card_number, pin_hash, status, pin_retry_count,
	daily_withdrawal_limit, daily_withdrawal_used, customer_id`

func (r *cardsRepo) Create(ctx context.Context, c models.Card) (models.Card, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO cards(card_number, pin_hash, status, pin_retry_count,
		        daily_withdrawal_limit, daily_withdrawal_used, customer_id)
		 VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		c.CardNumber, c.PinHash, c.Status, c.PinRetryCount,
		c.DailyWithdrawalLimit, c.DailyWithdrawalUsed, c.CustomerID,
	).Scan(&c.ID)
	return c, err
}

func (r *cardsRepo) scanOne(ctx context.Context, query string, arg any) (models.Card, error) {
	var c models.Card
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.CardNumber, &c.PinHash, &c.Status, &c.PinRetryCount,
		&c.DailyWithdrawalLimit, &c.DailyWithdrawalUsed, &c.CustomerID,
	)
	return c, notFound(err)
}

func (r *cardsRepo) GetByID(ctx context.Context, id int64) (models.Card, error) {
	return r.scanOne(ctx, `SELECT `+cardColumns+` FROM cards WHERE id=$1`, id)
}

func (r *cardsRepo) GetByNumber(ctx context.Context, number string) (models.Card, error) {
	return r.scanOne(ctx, `SELECT `+cardColumns+` FROM cards WHERE card_number=$1`, number)
}

func (r *cardsRepo) Update(ctx context.Context, c models.Card) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE cards
		    SET pin_hash=$2, status=$3, pin_retry_count=$4,
		        daily_withdrawal_limit=$5, daily_withdrawal_used=$6
		  WHERE id=$1`,
		c.ID, c.PinHash, c.Status, c.PinRetryCount,
		c.DailyWithdrawalLimit, c.DailyWithdrawalUsed,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundRow()
	}
	return nil
}

func (r *cardsRepo) Link(ctx context.Context, cardID, accountID int64) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO card_accounts(card_id, account_id) VALUES($1,$2)
		 ON CONFLICT (card_id, account_id) DO NOTHING`,
		cardID, accountID)
	return err
}

func (r *cardsRepo) ResetAllDailyUsage(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE cards SET daily_withdrawal_used=0 WHERE daily_withdrawal_used<>0`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
