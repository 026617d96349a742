package postgres

import (
	"context"

	"github.com/atmsys/atm-backend/internal/models"
)

type inventoryRepo struct{ q Querier }

// Single-ATM deployment: one inventory row exists and every caller shares it.

func (r *inventoryRepo) Get(ctx context.Context) (models.AtmInventory, error) {
	var inv models.AtmInventory
	err := r.q.QueryRow(ctx,
		`SELECT id, atm_id, cash_available, updated_at
		   FROM atm_inventories ORDER BY id LIMIT 1`,
	).Scan(&inv.ID, &inv.AtmID, &inv.CashAvailable, &inv.UpdatedAt)
	return inv, notFound(err)
}

func (r *inventoryRepo) SetCash(ctx context.Context, cash int64) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE atm_inventories SET cash_available=$1, updated_at=now()
		  WHERE id=(SELECT id FROM atm_inventories ORDER BY id LIMIT 1)`,
		cash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundRow()
	}
	return nil
}
