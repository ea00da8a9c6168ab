package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// readSqlite reads an operations table with the columns stock_code,
// operation_date, operation_type, price, quantity and amount. Execution times,
// when known, are part of operation_date.
func readSqlite(ctx context.Context, path, table, instrument string) (records []record, err error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	q := fmt.Sprintf(`SELECT stock_code, operation_date, operation_type,
		COALESCE(price, 0), COALESCE(quantity, 0), COALESCE(amount, 0)
		FROM %s WHERE (? = '' OR stock_code = ?) ORDER BY operation_date`, table)

	rows, err := db.QueryContext(ctx, q, instrument, instrument)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r record
		if err = rows.Scan(&r.Instrument, &r.Date, &r.Type, &r.Price, &r.Quantity, &r.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		records = append(records, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}

	return records, nil
}
