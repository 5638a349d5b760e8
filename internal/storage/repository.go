package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS gas_samples (
        observed_at   TIMESTAMPTZ PRIMARY KEY,
        safe_gwei     NUMERIC NOT NULL,
        propose_gwei  NUMERIC NOT NULL,
        fast_gwei     NUMERIC NOT NULL,
        status        TEXT NOT NULL,
        reason        TEXT NOT NULL DEFAULT '',
        eth_price_usd NUMERIC,
        block_number  BIGINT,
        base_fee_gwei NUMERIC,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS gas_alerts (
        id             TEXT PRIMARY KEY,
        triggered_at   TIMESTAMPTZ NOT NULL,
        propose_gwei   NUMERIC NOT NULL,
        threshold_gwei NUMERIC NOT NULL,
        level          TEXT NOT NULL,
        channels       TEXT[] NOT NULL DEFAULT '{}',
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS gas_alerts_created_at_idx ON gas_alerts (created_at);`

	upsertGasSampleSQL = `INSERT INTO gas_samples (
        observed_at,
        safe_gwei,
        propose_gwei,
        fast_gwei,
        status,
        reason,
        eth_price_usd,
        block_number,
        base_fee_gwei
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (observed_at) DO UPDATE
    SET
        safe_gwei     = EXCLUDED.safe_gwei,
        propose_gwei  = EXCLUDED.propose_gwei,
        fast_gwei     = EXCLUDED.fast_gwei,
        status        = EXCLUDED.status,
        reason        = EXCLUDED.reason,
        eth_price_usd = EXCLUDED.eth_price_usd,
        block_number  = EXCLUDED.block_number,
        base_fee_gwei = EXCLUDED.base_fee_gwei;`

	selectGasSampleColumns = `SELECT
        observed_at,
        safe_gwei::text,
        propose_gwei::text,
        fast_gwei::text,
        status,
        reason,
        eth_price_usd::text,
        block_number,
        base_fee_gwei::text,
        created_at
    FROM gas_samples`

	listSamplesBetweenSQL = selectGasSampleColumns + `
    WHERE observed_at >= $1
      AND observed_at < $2
    ORDER BY observed_at;`

	listRecentSamplesSQL = selectGasSampleColumns + `
    ORDER BY observed_at DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM gas_samples;`

	deleteSamplesBeforeSQL = `DELETE FROM gas_samples WHERE observed_at < $1;`

	insertAlertSQL = `INSERT INTO gas_alerts (
        id,
        triggered_at,
        propose_gwei,
        threshold_gwei,
        level,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (id) DO UPDATE
    SET channels = EXCLUDED.channels
    RETURNING id, triggered_at, propose_gwei::text, threshold_gwei::text, level, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        triggered_at,
        propose_gwei::text,
        threshold_gwei::text,
        level,
        channels,
        created_at
    FROM gas_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM gas_alerts WHERE created_at < $1;`
)

// GasSampleStore defines operations for gas sample persistence.
type GasSampleStore interface {
	UpsertGasSample(ctx context.Context, sample GasSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]GasSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]GasSample, error)
	CountSamples(ctx context.Context) (int64, error)
	DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to gas samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ GasSampleStore = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the archive tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertGasSample persists or updates the sample observed at sample.ObservedAt.
func (s *Store) UpsertGasSample(ctx context.Context, sample GasSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var block interface{}
	if sample.BlockNumber != nil {
		block = *sample.BlockNumber
	}

	_, execErr := pool.Exec(ctx, upsertGasSampleSQL,
		sample.ObservedAt,
		sample.Safe.String(),
		sample.Propose.String(),
		sample.Fast.String(),
		sample.Status,
		sample.Reason,
		nullableDecimal(sample.EthPriceUSD),
		block,
		nullableDecimal(sample.BaseFeeGwei),
	)
	if execErr != nil {
		return fmt.Errorf("upsert gas sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window, oldest first.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]GasSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples ordered newest first.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]GasSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	return collectSamples(rows, limit)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// DeleteSamplesBefore prunes old samples and reports how many were removed.
func (s *Store) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteSamplesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete samples before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.ID,
		alert.TriggeredAt,
		alert.ProposeGwei.String(),
		alert.ThresholdGwei.String(),
		alert.Level,
		channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows, capacity int) ([]GasSample, error) {
	defer rows.Close()

	samples := make([]GasSample, 0, capacity)
	for rows.Next() {
		sample, scanErr := scanGasSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanGasSample(row pgx.Row) (GasSample, error) {
	var (
		observedAt time.Time
		safeStr    string
		proposeStr string
		fastStr    string
		status     string
		reason     string
		ethStr     sql.NullString
		block      sql.NullInt64
		baseFeeStr sql.NullString
		createdAt  time.Time
	)

	if err := row.Scan(
		&observedAt,
		&safeStr,
		&proposeStr,
		&fastStr,
		&status,
		&reason,
		&ethStr,
		&block,
		&baseFeeStr,
		&createdAt,
	); err != nil {
		return GasSample{}, err
	}

	safe, err := decimal.NewFromString(safeStr)
	if err != nil {
		return GasSample{}, fmt.Errorf("parse safe gwei: %w", err)
	}
	propose, err := decimal.NewFromString(proposeStr)
	if err != nil {
		return GasSample{}, fmt.Errorf("parse propose gwei: %w", err)
	}
	fast, err := decimal.NewFromString(fastStr)
	if err != nil {
		return GasSample{}, fmt.Errorf("parse fast gwei: %w", err)
	}
	eth, err := parseNullDecimal(ethStr)
	if err != nil {
		return GasSample{}, fmt.Errorf("parse eth price: %w", err)
	}
	baseFee, err := parseNullDecimal(baseFeeStr)
	if err != nil {
		return GasSample{}, fmt.Errorf("parse base fee: %w", err)
	}

	sample := GasSample{
		ObservedAt:  observedAt,
		Safe:        safe,
		Propose:     propose,
		Fast:        fast,
		Status:      status,
		Reason:      reason,
		EthPriceUSD: eth,
		BaseFeeGwei: baseFee,
		CreatedAt:   createdAt,
	}
	if block.Valid {
		value := block.Int64
		sample.BlockNumber = &value
	}
	return sample, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var rec AlertRecord
	var proposeStr, thresholdStr string
	if err := row.Scan(
		&rec.ID,
		&rec.TriggeredAt,
		&proposeStr,
		&thresholdStr,
		&rec.Level,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.ProposeGwei, convErr = decimal.NewFromString(proposeStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse propose gwei: %w", convErr)
	}
	rec.ThresholdGwei, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold gwei: %w", convErr)
	}
	return rec, nil
}

func nullableDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
