package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"agentic_delist/pkg/core/validate"
)

// ResultsRepo handles the storage of extracted delisting records.
type ResultsRepo struct{}

// NewResultsRepo creates a new repository instance.
func NewResultsRepo() *ResultsRepo {
	return &ResultsRepo{}
}

// Save persists one delisting record, keyed by stock code. Re-running a
// subject overwrites its previous record.
func (r *ResultsRepo) Save(ctx context.Context, record map[string]string) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	code := record[validate.FieldCode]
	if code == "" {
		return fmt.Errorf("record has no stock code")
	}

	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	var delistDate any
	if d := record[validate.FieldDelistDate]; d != "" && d != validate.Placeholder {
		delistDate = d
	}

	query := `
		INSERT INTO delist_records (code, name, delist_date, record_json, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code)
		DO UPDATE SET
			name = EXCLUDED.name,
			delist_date = EXCLUDED.delist_date,
			record_json = EXCLUDED.record_json,
			updated_at = EXCLUDED.updated_at;
	`
	_, err = pool.Exec(ctx, query, code, record[validate.FieldName], delistDate, jsonData, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save record for %s: %w", code, err)
	}
	return nil
}

// Get loads the record for one stock code, or pgx.ErrNoRows.
func (r *ResultsRepo) Get(ctx context.Context, code string) (map[string]string, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	var jsonData []byte
	err := pool.QueryRow(ctx, `SELECT record_json FROM delist_records WHERE code = $1`, code).Scan(&jsonData)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load record for %s: %w", code, err)
	}

	record := make(map[string]string)
	if err := json.Unmarshal(jsonData, &record); err != nil {
		return nil, fmt.Errorf("corrupt record for %s: %w", code, err)
	}
	return record, nil
}

// List returns every stored record ordered by code.
func (r *ResultsRepo) List(ctx context.Context) ([]map[string]string, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	rows, err := pool.Query(ctx, `SELECT record_json FROM delist_records ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []map[string]string
	for rows.Next() {
		var jsonData []byte
		if err := rows.Scan(&jsonData); err != nil {
			return nil, err
		}
		record := make(map[string]string)
		if err := json.Unmarshal(jsonData, &record); err != nil {
			return nil, fmt.Errorf("corrupt record row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
