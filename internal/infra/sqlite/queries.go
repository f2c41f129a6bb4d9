package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DailyBalanceRow is one day of the daily_balances view.
type DailyBalanceRow struct {
	Day        string // YYYY-MM-DD
	AccountID  string
	DailyNet   int64
	EODBalance int64
}

// DailyBalances returns end-of-day balances per account, oldest first.
// A zero since returns the full history.
func (s *Store) DailyBalances(ctx context.Context, since time.Time) ([]DailyBalanceRow, error) {
	query := `
		SELECT day, account_id, daily_net, eod_balance
		FROM daily_balances
	`
	var args []any
	if !since.IsZero() {
		query += " WHERE day >= ?"
		args = append(args, since.UTC().Format("2006-01-02"))
	}
	query += " ORDER BY account_id, day"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("DailyBalances: querying: %w", err)
	}
	defer rows.Close()

	var out []DailyBalanceRow
	for rows.Next() {
		var row DailyBalanceRow
		if err := rows.Scan(&row.Day, &row.AccountID, &row.DailyNet, &row.EODBalance); err != nil {
			return nil, fmt.Errorf("DailyBalances: scanning: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DailyBalances: iterating: %w", err)
	}
	return out, nil
}

// DailyNetRow is one day's aggregate movement on an account, with the
// day's biggest transaction for context.
type DailyNetRow struct {
	Day       string
	NetChange int64
	TxCount   int64
	BiggestTx string
}

// DailyNet returns per-day net changes for one account, declined
// transactions excluded, oldest first.
func (s *Store) DailyNet(ctx context.Context, accountID string, since time.Time) ([]DailyNetRow, error) {
	query := `
		SELECT
		    date(t.created) AS day,
		    SUM(t.amount) AS net_change,
		    COUNT(*) AS tx_count,
		    COALESCE((
		        SELECT COALESCE(p.name, t2.description, '')
		        FROM transactions t2
		        LEFT JOIN pots p ON t2.description = p.id
		        WHERE t2.account_id = t.account_id
		          AND date(t2.created) = date(t.created)
		          AND t2.decline_reason IS NULL
		        ORDER BY ABS(t2.amount) DESC
		        LIMIT 1
		    ), '') AS biggest_tx
		FROM transactions t
		WHERE t.account_id = ? AND t.decline_reason IS NULL
	`
	args := []any{accountID}
	if !since.IsZero() {
		query += " AND t.created >= ?"
		args = append(args, formatTime(since))
	}
	query += " GROUP BY 1 ORDER BY 1"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("DailyNet: querying: %w", err)
	}
	defer rows.Close()

	var out []DailyNetRow
	for rows.Next() {
		var row DailyNetRow
		if err := rows.Scan(&row.Day, &row.NetChange, &row.TxCount, &row.BiggestTx); err != nil {
			return nil, fmt.Errorf("DailyNet: scanning: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DailyNet: iterating: %w", err)
	}
	return out, nil
}

// Categories returns the distinct transaction categories, sorted.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT category FROM transactions
		WHERE category IS NOT NULL
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("Categories: querying: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("Categories: scanning: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Categories: iterating: %w", err)
	}
	return categories, nil
}

// DailySpendRow is one day of outgoing spend with its running total.
type DailySpendRow struct {
	Day        string
	Spent      int64 // positive minor units
	Cumulative int64
}

// DailySpending returns per-day spend (negative, non-declined amounts)
// with a running cumulative total. Categories in exclude are filtered
// out, pot shuffles and savings typically.
func (s *Store) DailySpending(ctx context.Context, since time.Time, exclude []string) ([]DailySpendRow, error) {
	query := `
		WITH daily AS (
		    SELECT date(created) AS day, SUM(-amount) AS spent
		    FROM transactions
		    WHERE amount < 0 AND decline_reason IS NULL
	`
	var args []any
	if len(exclude) > 0 {
		query += " AND COALESCE(category, '') NOT IN (?" + strings.Repeat(", ?", len(exclude)-1) + ")"
		for _, c := range exclude {
			args = append(args, c)
		}
	}
	if !since.IsZero() {
		query += " AND created >= ?"
		args = append(args, formatTime(since))
	}
	query += `
		    GROUP BY 1
		)
		SELECT day, spent, SUM(spent) OVER (ORDER BY day) AS cumulative
		FROM daily
		ORDER BY day
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("DailySpending: querying: %w", err)
	}
	defer rows.Close()

	var out []DailySpendRow
	for rows.Next() {
		var row DailySpendRow
		if err := rows.Scan(&row.Day, &row.Spent, &row.Cumulative); err != nil {
			return nil, fmt.Errorf("DailySpending: scanning: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DailySpending: iterating: %w", err)
	}
	return out, nil
}

// CategorySpendRow is total spend in one category.
type CategorySpendRow struct {
	Category string
	Spent    int64 // positive minor units
	TxCount  int64
}

// SpendingByCategory sums outgoing spend per category, largest first.
func (s *Store) SpendingByCategory(ctx context.Context, since time.Time) ([]CategorySpendRow, error) {
	query := `
		SELECT COALESCE(category, 'uncategorised'), SUM(-amount), COUNT(*)
		FROM transactions
		WHERE amount < 0 AND decline_reason IS NULL
	`
	var args []any
	if !since.IsZero() {
		query += " AND created >= ?"
		args = append(args, formatTime(since))
	}
	query += " GROUP BY 1 ORDER BY 2 DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SpendingByCategory: querying: %w", err)
	}
	defer rows.Close()

	var out []CategorySpendRow
	for rows.Next() {
		var row CategorySpendRow
		if err := rows.Scan(&row.Category, &row.Spent, &row.TxCount); err != nil {
			return nil, fmt.Errorf("SpendingByCategory: scanning: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SpendingByCategory: iterating: %w", err)
	}
	return out, nil
}
