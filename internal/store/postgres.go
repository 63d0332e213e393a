package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"

	"busquest/internal/model"
)

// Postgres persists plans and traces as JSONB rows, keyed by the version
// tuple so a cache warm-up can skip recomputation after a restart.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS challenge_plans (
			plan_id          text PRIMARY KEY,
			challenge_id     text NOT NULL,
			network_version  text NOT NULL,
			realtime_version text NOT NULL,
			engine           text NOT NULL,
			score            double precision NOT NULL,
			generated_at     timestamptz NOT NULL DEFAULT now(),
			payload          jsonb NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS challenge_plans_lookup
			ON challenge_plans (challenge_id, network_version, realtime_version, generated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS search_traces (
			challenge_id text PRIMARY KEY,
			engine       text NOT NULL,
			limit_hit    boolean NOT NULL,
			payload      jsonb NOT NULL,
			updated_at   timestamptz NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) SavePlan(ctx context.Context, plan *model.ChallengePlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO challenge_plans (plan_id, challenge_id, network_version, realtime_version, engine, score, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (plan_id) DO NOTHING`,
		plan.PlanID, plan.ChallengeID, plan.NetworkVersion, plan.RealtimeVersion,
		plan.Engine, plan.Score, payload)
	return err
}

func (p *Postgres) scanPlan(row *sql.Row) (*model.ChallengePlan, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var plan model.ChallengePlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Postgres) GetPlan(ctx context.Context, challengeID, networkVersion, realtimeVersion string) (*model.ChallengePlan, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT payload FROM challenge_plans
		WHERE challenge_id=$1 AND network_version=$2 AND realtime_version=$3
		ORDER BY generated_at DESC LIMIT 1`,
		challengeID, networkVersion, realtimeVersion)
	return p.scanPlan(row)
}

func (p *Postgres) LatestPlan(ctx context.Context, challengeID string) (*model.ChallengePlan, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT payload FROM challenge_plans
		WHERE challenge_id=$1
		ORDER BY generated_at DESC LIMIT 1`, challengeID)
	return p.scanPlan(row)
}

func (p *Postgres) ListPlans(ctx context.Context, challengeID string, limit int) ([]*model.ChallengePlan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT payload FROM challenge_plans
		WHERE challenge_id=$1
		ORDER BY generated_at DESC LIMIT $2`, challengeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ChallengePlan
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var plan model.ChallengePlan
		if err := json.Unmarshal(payload, &plan); err != nil {
			return nil, err
		}
		out = append(out, &plan)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveTrace(ctx context.Context, t *model.EngineTrace) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO search_traces (challenge_id, engine, limit_hit, payload, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (challenge_id) DO UPDATE
		SET engine=EXCLUDED.engine, limit_hit=EXCLUDED.limit_hit,
		    payload=EXCLUDED.payload, updated_at=now()`,
		t.ChallengeID, t.Engine, t.LimitHit, payload)
	return err
}

func (p *Postgres) LatestTrace(ctx context.Context, challengeID string) (*model.EngineTrace, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM search_traces WHERE challenge_id=$1`, challengeID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var t model.EngineTrace
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) Close() { p.db.Close() }
