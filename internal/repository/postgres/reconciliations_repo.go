package postgres

import (
	"context"

	"github.com/atmsys/atm-backend/internal/models"
)

type reconciliationsRepo struct{ q Querier }

func (r *reconciliationsRepo) Create(ctx context.Context, rec models.AtmReconciliation) (models.AtmReconciliation, error) {
	err := r.q.QueryRow(ctx,
		`INSERT INTO atm_reconciliations(atm_id, counted_cash, system_cash_before,
		        difference, notes, operator_id, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		rec.AtmID, rec.CountedCash, rec.SystemCashBefore,
		rec.Difference, rec.Notes, rec.OperatorID, rec.CreatedAt,
	).Scan(&rec.ID)
	return rec, err
}
