package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cvrpsim/internal/cvrp"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// MigrateDir applies the *.sql files of dir in name order, once each.
// Applied file names are kept in schema_migrations.
func (p *Postgres) MigrateDir(dir string) error {
	ctx := context.Background()
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		name := filepath.Base(f)
		var seen bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&seen); err != nil {
			return err
		}
		if seen {
			continue
		}
		body, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateProblem(ctx context.Context, tenantID string, rec cvrp.Record) (Problem, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return Problem{}, err
	}
	out := Problem{ID: uuid.New().String(), TenantID: tenantID, Record: rec}
	err = p.db.QueryRowContext(ctx, `INSERT INTO problems (id, tenant_id, record) VALUES ($1,$2,$3::jsonb) RETURNING created_at`,
		out.ID, tenantID, string(body)).Scan(&out.CreatedAt)
	if err != nil {
		return Problem{}, err
	}
	return out, nil
}

func (p *Postgres) GetProblem(ctx context.Context, tenantID, id string) (Problem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Problem{}, ErrNotFound
	}
	out := Problem{ID: id, TenantID: tenantID}
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT record, created_at FROM problems WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&body, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Problem{}, ErrNotFound
	}
	if err != nil {
		return Problem{}, err
	}
	if err := json.Unmarshal(body, &out.Record); err != nil {
		return Problem{}, fmt.Errorf("problem %s: %w", id, err)
	}
	return out, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	err := p.db.QueryRowContext(ctx, `INSERT INTO runs (id, tenant_id, problem_id, algorithm, config, status, callback_url, callback_secret)
        VALUES ($1,$2,$3,$4,$5::jsonb,$6,$7,$8) RETURNING created_at, updated_at`,
		run.ID, run.TenantID, run.ProblemID, run.Algorithm, jsonOrNull(run.Config), run.Status, nullIfEmpty(run.CallbackURL), nullIfEmpty(run.CallbackSecret)).
		Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

const runColumns = `id::text, tenant_id, problem_id::text, algorithm, COALESCE(config::text,''), status, iterations, best_cost, best_solution, COALESCE(error,''), COALESCE(callback_url,''), COALESCE(callback_secret,''), created_at, updated_at, finished_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var cfg string
	var best sql.NullFloat64
	var sol []byte
	var fin sql.NullTime
	if err := row.Scan(&r.ID, &r.TenantID, &r.ProblemID, &r.Algorithm, &cfg, &r.Status, &r.Iterations, &best, &sol, &r.Error, &r.CallbackURL, &r.CallbackSecret, &r.CreatedAt, &r.UpdatedAt, &fin); err != nil {
		return Run{}, err
	}
	if cfg != "" {
		r.Config = json.RawMessage(cfg)
	}
	if best.Valid {
		c := best.Float64
		r.BestCost = &c
	}
	if len(sol) > 0 {
		if err := json.Unmarshal(sol, &r.BestSolution); err != nil {
			return Run{}, fmt.Errorf("run %s: best solution: %w", r.ID, err)
		}
	}
	if fin.Valid {
		t := fin.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Run{}, ErrNotFound
	}
	r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, status string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + runColumns + ` FROM runs WHERE tenant_id=$1`
	var rows *sql.Rows
	var err error
	if status != "" {
		q += ` AND status=$2 ORDER BY created_at DESC LIMIT $3`
		rows, err = p.db.QueryContext(ctx, q, tenantID, status, limit)
	} else {
		q += ` ORDER BY created_at DESC LIMIT $2`
		rows, err = p.db.QueryContext(ctx, q, tenantID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateRun(ctx context.Context, upd RunUpdate) error {
	var best, sol any
	if upd.BestCost != nil {
		b, err := json.Marshal(upd.BestSolution)
		if err != nil {
			return err
		}
		best, sol = *upd.BestCost, string(b)
	}
	res, err := p.db.ExecContext(ctx, `UPDATE runs SET
        status=CASE WHEN status IN ('completed','stopped','failed') THEN status ELSE COALESCE(NULLIF($2,''), status) END,
        iterations=GREATEST(iterations, $3),
        best_cost=COALESCE($4::double precision, best_cost),
        best_solution=COALESCE($5::jsonb, best_solution),
        error=COALESCE(NULLIF($6,''), error),
        finished_at=CASE WHEN $7::boolean AND finished_at IS NULL THEN now() ELSE finished_at END,
        updated_at=now()
        WHERE id=$1`, upd.ID, upd.Status, upd.Iterations, best, sol, upd.Error, upd.Finished)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, run_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(runID), eventType, url, nullIfEmpty(secret), payload, computeDedupKey(payload))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(run_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.RunID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(1 * time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	if err != nil {
		return err
	}
	// move to DLQ
	_, err = p.db.ExecContext(ctx, `INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, secret, payload, attempts, last_error)
        SELECT gen_random_uuid(), tenant_id, id, event_type, url, secret, payload, attempts, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
	return err
}

// computeDedupKey uses the payload's "id" (or "runId") when present and a
// short content hash otherwise.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		for _, k := range []string{"id", "runId"} {
			if v, ok := m[k].(string); ok && v != "" {
				return v
			}
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonOrNull(b json.RawMessage) any {
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	return string(b)
}
