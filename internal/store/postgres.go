// Package store provides the durable implementations of the endpoint
// registry and delivery record log: Postgres for deployments, an in-memory
// variant for development and tests.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftmarket/hookline/internal/hook"
)

// Postgres implements hook.EndpointStore and hook.DeliveryStore over a
// pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const endpointColumns = `
	id, owner_id, url, secret, events, status, consecutive_failures,
	last_delivery_at, last_success_at, last_failure_at, last_failure_reason,
	created_at, updated_at, deleted_at`

func scanEndpoint(row pgx.Row) (*hook.Endpoint, error) {
	var (
		ep            hook.Endpoint
		status        string
		failureReason sql.NullString
	)
	err := row.Scan(
		&ep.ID, &ep.OwnerID, &ep.URL, &ep.Secret, &ep.Events, &status,
		&ep.ConsecutiveFailures, &ep.LastDeliveryAt, &ep.LastSuccessAt,
		&ep.LastFailureAt, &failureReason, &ep.CreatedAt, &ep.UpdatedAt,
		&ep.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, hook.NotFoundf("endpoint")
		}
		return nil, err
	}
	ep.Status = hook.EndpointStatus(status)
	ep.LastFailureReason = failureReason.String
	return &ep, nil
}

func (s *Postgres) CreateEndpoint(ctx context.Context, ep *hook.Endpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hookline.endpoints
			(id, owner_id, url, secret, events, status, consecutive_failures, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ep.ID, ep.OwnerID, ep.URL, ep.Secret, ep.Events, string(ep.Status),
		ep.ConsecutiveFailures, ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

func (s *Postgres) GetEndpoint(ctx context.Context, id, ownerID string) (*hook.Endpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM hookline.endpoints WHERE id = $1 AND deleted_at IS NULL`
	args := []any{id}
	if ownerID != "" {
		q += ` AND owner_id = $2`
		args = append(args, ownerID)
	}
	return scanEndpoint(s.pool.QueryRow(ctx, q, args...))
}

func (s *Postgres) ListEndpoints(ctx context.Context, ownerID string) ([]*hook.Endpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+endpointColumns+`
		FROM hookline.endpoints
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hook.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateEndpoint(ctx context.Context, ep *hook.Endpoint) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE hookline.endpoints
		SET url = $2, events = $3, status = $4, consecutive_failures = $5,
		    last_failure_reason = NULLIF($6, ''), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		ep.ID, ep.URL, ep.Events, string(ep.Status),
		ep.ConsecutiveFailures, ep.LastFailureReason,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return hook.NotFoundf("endpoint %s", ep.ID)
	}
	return nil
}

func (s *Postgres) SoftDeleteEndpoint(ctx context.Context, id, ownerID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE hookline.endpoints
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`,
		id, ownerID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return hook.NotFoundf("endpoint %s", id)
	}
	return nil
}

func (s *Postgres) ListActiveSubscribers(ctx context.Context, eventType string) ([]*hook.Endpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+endpointColumns+`
		FROM hookline.endpoints
		WHERE status = 'active' AND deleted_at IS NULL AND $1 = ANY(events)`,
		eventType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hook.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *Postgres) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hookline.endpoints
		SET consecutive_failures = 0, last_delivery_at = $2, last_success_at = $2,
		    last_failure_reason = NULL, updated_at = now()
		WHERE id = $1`,
		id, at,
	)
	return err
}

func (s *Postgres) RecordFailure(ctx context.Context, id string, at time.Time, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hookline.endpoints
		SET consecutive_failures = consecutive_failures + 1,
		    last_delivery_at = $2, last_failure_at = $2,
		    last_failure_reason = $3, updated_at = now()
		WHERE id = $1`,
		id, at, reason,
	)
	return err
}

func (s *Postgres) Quarantine(ctx context.Context, threshold int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE hookline.endpoints
		SET status = 'failing', updated_at = now()
		WHERE status = 'active' AND deleted_at IS NULL AND consecutive_failures >= $1
		RETURNING id`,
		threshold,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const deliveryColumns = `
	id, endpoint_id, event, payload, request_headers, response_status,
	response_body, duration_ms, status, attempts, next_retry_at,
	delivered_at, created_at, updated_at`

func scanDelivery(row pgx.Row) (*hook.DeliveryRecord, error) {
	var (
		rec     hook.DeliveryRecord
		status  string
		headers []byte
	)
	err := row.Scan(
		&rec.ID, &rec.EndpointID, &rec.Event, &rec.Payload, &headers,
		&rec.ResponseStatus, &rec.ResponseBody, &rec.DurationMs, &status,
		&rec.Attempts, &rec.NextRetryAt, &rec.DeliveredAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, hook.NotFoundf("delivery")
		}
		return nil, err
	}
	rec.Status = hook.DeliveryStatus(status)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &rec.RequestHeaders); err != nil {
			return nil, fmt.Errorf("decode request headers: %w", err)
		}
	}
	return &rec, nil
}

func marshalHeaders(h map[string]string) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

func (s *Postgres) CreateDelivery(ctx context.Context, rec *hook.DeliveryRecord) error {
	headers, err := marshalHeaders(rec.RequestHeaders)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO hookline.deliveries
			(id, endpoint_id, event, payload, request_headers, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.EndpointID, rec.Event, []byte(rec.Payload), headers,
		string(rec.Status), rec.Attempts, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *Postgres) GetDelivery(ctx context.Context, id string) (*hook.DeliveryRecord, error) {
	return scanDelivery(s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM hookline.deliveries WHERE id = $1`, id))
}

func (s *Postgres) UpdateDelivery(ctx context.Context, rec *hook.DeliveryRecord) error {
	headers, err := marshalHeaders(rec.RequestHeaders)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE hookline.deliveries
		SET request_headers = $2, response_status = $3, response_body = $4,
		    duration_ms = $5, status = $6, attempts = $7, next_retry_at = $8,
		    delivered_at = $9, updated_at = now()
		WHERE id = $1`,
		rec.ID, headers, rec.ResponseStatus, rec.ResponseBody, rec.DurationMs,
		string(rec.Status), rec.Attempts, rec.NextRetryAt, rec.DeliveredAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return hook.NotFoundf("delivery %s", rec.ID)
	}
	return nil
}

func (s *Postgres) ListDeliveries(ctx context.Context, f hook.DeliveryFilter) ([]*hook.DeliveryRecord, error) {
	// Dynamic WHERE clause over the optional filters.
	args := []any{}
	where := "1=1"
	argn := 0
	add := func(clause string, v any) {
		argn++
		where += fmt.Sprintf(" AND "+clause, argn)
		args = append(args, v)
	}
	if f.EndpointID != "" {
		add("endpoint_id = $%d", f.EndpointID)
	}
	if f.Event != "" {
		add("event = $%d", f.Event)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := fmt.Sprintf(`
		SELECT `+deliveryColumns+`
		FROM hookline.deliveries
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, where, limit, max(f.Offset, 0))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hook.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*hook.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM hookline.deliveries
		WHERE status IN ('retried', 'failed')
		  AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*hook.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) ClaimForRetry(ctx context.Context, id string, prev hook.DeliveryStatus, prevNextRetryAt *time.Time) (bool, error) {
	// Consuming next_retry_at on claim keeps a racing sweep, whose snapshot
	// still carries the old value, from claiming the same record again.
	ct, err := s.pool.Exec(ctx, `
		UPDATE hookline.deliveries
		SET status = 'retried', next_retry_at = NULL, updated_at = now()
		WHERE id = $1 AND status = $2 AND next_retry_at IS NOT DISTINCT FROM $3`,
		id, string(prev), prevNextRetryAt,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

var (
	_ hook.EndpointStore = (*Postgres)(nil)
	_ hook.DeliveryStore = (*Postgres)(nil)
)
