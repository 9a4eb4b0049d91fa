package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
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
	p := &Postgres{db: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trailer_events (
			id text PRIMARY KEY,
			trailer_id text NOT NULL,
			state int NOT NULL,
			ts timestamptz NOT NULL,
			location jsonb,
			logistician jsonb,
			interactions jsonb NOT NULL DEFAULT '[]',
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS trailer_events_trailer_ts ON trailer_events (trailer_id, ts)`,
		`CREATE TABLE IF NOT EXISTS webhook_subscriptions (
			id text PRIMARY KEY,
			url text NOT NULL,
			events jsonb NOT NULL DEFAULT '[]',
			secret text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id text PRIMARY KEY,
			subscription_id text,
			event_type text NOT NULL,
			url text NOT NULL,
			secret text,
			payload jsonb NOT NULL,
			status text NOT NULL DEFAULT 'pending',
			attempts int NOT NULL DEFAULT 0,
			next_attempt_at timestamptz NOT NULL DEFAULT now(),
			last_error text,
			response_code int,
			latency_ms int,
			delivered_at timestamptz,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_deliveries_due ON webhook_deliveries (status, next_attempt_at)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) UpsertEvents(ctx context.Context, trailerID string, evs []model.Event) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	accepted := 0
	for _, ev := range evs {
		if ev.TrailerID == "" {
			ev.TrailerID = trailerID
		}
		if ev.ID == "" || ev.TrailerID == "" {
			continue
		}
		loc, logi, inter := encodeEvent(ev)
		_, err := tx.ExecContext(ctx, `INSERT INTO trailer_events (id, trailer_id, state, ts, location, logistician, interactions)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET state=$3, ts=$4, location=$5, logistician=$6, interactions=$7, updated_at=now()`,
			ev.ID, ev.TrailerID, int(ev.State), ev.Time, loc, logi, inter)
		if err != nil {
			return 0, err
		}
		accepted++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return accepted, nil
}

func (p *Postgres) ReplaceTrailerEvents(ctx context.Context, trailerID string, evs []model.Event) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM trailer_events WHERE trailer_id=$1`, trailerID); err != nil {
		return err
	}
	for _, ev := range evs {
		if ev.ID == "" {
			continue
		}
		loc, logi, inter := encodeEvent(ev)
		_, err := tx.ExecContext(ctx, `INSERT INTO trailer_events (id, trailer_id, state, ts, location, logistician, interactions)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			ev.ID, trailerID, int(ev.State), ev.Time, loc, logi, inter)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListEvents(ctx context.Context, trailerID string, from, to time.Time, limit int) ([]model.Event, error) {
	q := `SELECT id, trailer_id, state, ts, location, logistician, interactions FROM trailer_events WHERE trailer_id=$1`
	args := []any{trailerID}
	idx := 2
	if !from.IsZero() {
		q += ` AND ts >= $2`
		args = append(args, from)
		idx++
	}
	if !to.IsZero() {
		q += ` AND ts <= $` + strconv.Itoa(idx)
		args = append(args, to)
		idx++
	}
	q += ` ORDER BY ts`
	if limit > 0 {
		q += ` DESC LIMIT $` + strconv.Itoa(idx)
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		// query returned newest-first to honor the limit; flip back
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (p *Postgres) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, trailer_id, state, ts, location, logistician, interactions FROM trailer_events WHERE id=$1`, eventID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

func (p *Postgres) SetInteractions(ctx context.Context, eventID string, interactions []model.Interaction) (model.Event, error) {
	b, _ := json.Marshal(interactions)
	res, err := p.db.ExecContext(ctx, `UPDATE trailer_events SET interactions=$2, updated_at=now() WHERE id=$1`, eventID, b)
	if err != nil {
		return model.Event{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Event{}, ErrNotFound
	}
	return p.GetEvent(ctx, eventID)
}

func (p *Postgres) ListTrailerIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT trailer_id FROM trailer_events ORDER BY trailer_id`)
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

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		id, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, COALESCE(secret,'') FROM webhook_subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &ev, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, COALESCE(secret,'') FROM webhook_subscriptions WHERE events @> to_jsonb(ARRAY[$1]::text[]) OR events @> '["*"]'::jsonb`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &ev, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, COALESCE(subscription_id,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status='pending' AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (model.Event, error) {
	var ev model.Event
	var st int
	var loc, logi, inter []byte
	if err := row.Scan(&ev.ID, &ev.TrailerID, &st, &ev.Time, &loc, &logi, &inter); err != nil {
		return model.Event{}, err
	}
	ev.State = state.TrailerState(st)
	if len(loc) > 0 {
		var l model.Location
		if json.Unmarshal(loc, &l) == nil {
			ev.Location = &l
		}
	}
	if len(logi) > 0 {
		var l model.Logistician
		if json.Unmarshal(logi, &l) == nil {
			ev.Logistician = &l
		}
	}
	if len(inter) > 0 {
		_ = json.Unmarshal(inter, &ev.Interactions)
	}
	return ev, nil
}

func encodeEvent(ev model.Event) (loc, logi, inter any) {
	if ev.Location != nil {
		b, _ := json.Marshal(ev.Location)
		loc = b
	}
	if ev.Logistician != nil {
		b, _ := json.Marshal(ev.Logistician)
		logi = b
	}
	b, _ := json.Marshal(ev.Interactions)
	if ev.Interactions == nil {
		b = []byte(`[]`)
	}
	inter = b
	return
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

