package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Insert persists one settled execution with both legs and its profit.
// Re-inserting the same opportunity overwrites the previous row, so a
// retried settlement write stays idempotent.
func (s *ExecutionStore) Insert(ctx context.Context, res domain.ExecutionResult, profit domain.RealizedProfit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (
			opportunity_id, symbol, outcome,
			buy_venue, buy_status, buy_price, buy_quantity, buy_fee,
			sell_venue, sell_status, sell_price, sell_quantity, sell_fee,
			gross_profit, total_fees, net_profit, matched_quantity,
			started_at, completed_at, settled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (opportunity_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			buy_status = EXCLUDED.buy_status,
			sell_status = EXCLUDED.sell_status,
			gross_profit = EXCLUDED.gross_profit,
			total_fees = EXCLUDED.total_fees,
			net_profit = EXCLUDED.net_profit,
			matched_quantity = EXCLUDED.matched_quantity,
			settled_at = EXCLUDED.settled_at`,
		res.OpportunityID, res.Symbol, string(res.Outcome),
		res.BuyFill.Venue, string(res.BuyFill.Status), res.BuyFill.Price, res.BuyFill.Quantity, res.BuyFill.Fee,
		res.SellFill.Venue, string(res.SellFill.Status), res.SellFill.Price, res.SellFill.Quantity, res.SellFill.Fee,
		profit.Gross, profit.Fees, profit.Net, profit.MatchedQuantity,
		res.StartedAt, res.CompletedAt, profit.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", res.OpportunityID, err)
	}
	return nil
}

// ListBefore returns executions completed strictly before the cutoff, oldest
// first, for the archiver.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionResult, error) {
	rows, err := s.pool.Query(ctx, selectExecutions+` WHERE completed_at < $1 ORDER BY completed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before %s: %w", before, err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// SumNetProfit returns the total net profit of executions settled at or
// after since.
func (s *ExecutionStore) SumNetProfit(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(net_profit), 0) FROM executions WHERE settled_at >= $1`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum net profit: %w", err)
	}
	return total, nil
}

// DeleteBefore removes executions completed strictly before the cutoff and
// returns how many rows were deleted. Used by the archiver after a
// successful upload.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM executions WHERE completed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions before %s: %w", before, err)
	}
	return int(tag.RowsAffected()), nil
}

const selectExecutions = `
	SELECT opportunity_id, symbol, outcome,
		buy_venue, buy_status, buy_price, buy_quantity, buy_fee,
		sell_venue, sell_status, sell_price, sell_quantity, sell_fee,
		started_at, completed_at
	FROM executions`

func scanExecutions(rows pgx.Rows) ([]domain.ExecutionResult, error) {
	var out []domain.ExecutionResult
	for rows.Next() {
		var res domain.ExecutionResult
		var outcome, buyStatus, sellStatus string
		if err := rows.Scan(
			&res.OpportunityID, &res.Symbol, &outcome,
			&res.BuyFill.Venue, &buyStatus, &res.BuyFill.Price, &res.BuyFill.Quantity, &res.BuyFill.Fee,
			&res.SellFill.Venue, &sellStatus, &res.SellFill.Price, &res.SellFill.Quantity, &res.SellFill.Fee,
			&res.StartedAt, &res.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		res.Outcome = domain.ExecutionOutcome(outcome)
		res.BuyFill.Side = domain.LegSideBuy
		res.BuyFill.Status = domain.FillStatus(buyStatus)
		res.SellFill.Side = domain.LegSideSell
		res.SellFill.Status = domain.FillStatus(sellStatus)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate executions: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
