// Package storage persiste picks y registros de estabilidad en SQLite.
//
// Esquema:
//   - `picks`: una fila por pick publicado, historial de auditoría solo de
//     inserción. El settlement es un UPDATE guardado, nunca un delete.
//   - `current_picks`: (scope, día) → id de pick. La PRIMARY KEY es lo que
//     convierte "como mucho un pick bloqueado por scope y día" en invariante
//     de almacenamiento en vez de convención.
//   - `stability_records`: el estado de lock por evento del guard, podado por
//     TTL al arrancar.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/pickbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS picks (
    id            TEXT PRIMARY KEY,
    scope         TEXT NOT NULL,
    day           TEXT NOT NULL,
    event_key     TEXT NOT NULL,
    event_id      TEXT NOT NULL DEFAULT '',
    sport         TEXT NOT NULL DEFAULT '',
    home_team     TEXT NOT NULL DEFAULT '',
    away_team     TEXT NOT NULL DEFAULT '',
    selection     TEXT NOT NULL,
    market_type   TEXT NOT NULL,
    price         INTEGER NOT NULL,
    line          REAL    NOT NULL DEFAULT 0,
    units         REAL    NOT NULL DEFAULT 1,
    sc_offense    REAL    NOT NULL DEFAULT 0,
    sc_matchup    REAL    NOT NULL DEFAULT 0,
    sc_situation  REAL    NOT NULL DEFAULT 0,
    sc_momentum   REAL    NOT NULL DEFAULT 0,
    sc_market     REAL    NOT NULL DEFAULT 0,
    sc_confidence REAL    NOT NULL DEFAULT 0,
    grade         TEXT    NOT NULL,
    confidence    REAL    NOT NULL DEFAULT 0,
    rationale     TEXT    NOT NULL DEFAULT '',
    low_quality   INTEGER NOT NULL DEFAULT 0,
    status        TEXT    NOT NULL DEFAULT 'pending',
    locked_at     TEXT    NOT NULL,
    lock_reason   TEXT    NOT NULL,
    event_start   TEXT    NOT NULL,
    created_at    TEXT    NOT NULL,
    win_amount    REAL    NOT NULL DEFAULT 0,
    settled_at    TEXT
);

CREATE TABLE IF NOT EXISTS current_picks (
    scope   TEXT NOT NULL,
    day     TEXT NOT NULL,
    pick_id TEXT NOT NULL REFERENCES picks(id),
    PRIMARY KEY (scope, day)
);

CREATE TABLE IF NOT EXISTS stability_records (
    event_key  TEXT PRIMARY KEY,
    grade      TEXT NOT NULL,
    reason     TEXT NOT NULL,
    locked_at  TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_picks_scope_day ON picks(scope, day);
CREATE INDEX IF NOT EXISTS idx_picks_event     ON picks(event_key);
CREATE INDEX IF NOT EXISTS idx_picks_pending   ON picks(status, event_start);
`

// stabilityRetention replica la ventana de retención del guard; un registro
// más viejo que esto es basura en cualquier caso.
const stabilityRetention = 24 * time.Hour

// Store implementa ports.PickStore y ports.StabilityStore sobre SQLite
// (Go puro, sin CGo).
type Store struct {
	db *sql.DB
}

// New abre (o crea) la base de datos en la ruta dada, aplica el esquema y
// poda los registros de estabilidad expirados.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.New: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es de escritor único
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.New: apply schema: %w", err)
	}

	s := &Store{db: db}
	s.pruneStability(context.Background())
	return s, nil
}

// PublishPick inserta el pick y apunta current_picks hacia él, en una
// transacción. El upsert sobre la clave primaria (scope, día) es el paso
// atómico que reemplaza a un pick rotado.
func (s *Store) PublishPick(ctx context.Context, p domain.Pick) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.PublishPick: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO picks
			(id, scope, day, event_key, event_id, sport, home_team, away_team,
			 selection, market_type, price, line, units,
			 sc_offense, sc_matchup, sc_situation, sc_momentum, sc_market, sc_confidence,
			 grade, confidence, rationale, low_quality, status,
			 locked_at, lock_reason, event_start, created_at, win_amount, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Scope), p.Day, p.EventKey, p.EventID, p.Sport, p.HomeTeam, p.AwayTeam,
		p.Selection, string(p.MarketType), p.Price, p.Line, p.Units,
		p.Scores.Offense, p.Scores.Matchup, p.Scores.Situational,
		p.Scores.Momentum, p.Scores.MarketEdge, p.Scores.Confidence,
		string(p.Grade), p.Confidence, p.Rationale, boolToInt(p.LowQuality), string(p.Status),
		fmtTime(p.LockedAt), string(p.LockReason), fmtTime(p.EventStartTime),
		fmtTime(p.CreatedAt), p.WinAmount, fmtTimePtr(p.SettledAt),
	); err != nil {
		return fmt.Errorf("storage.PublishPick: insert pick: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO current_picks (scope, day, pick_id) VALUES (?, ?, ?)
		ON CONFLICT(scope, day) DO UPDATE SET pick_id = excluded.pick_id`,
		string(p.Scope), p.Day, p.ID,
	); err != nil {
		return fmt.Errorf("storage.PublishPick: set current: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.PublishPick: commit: %w", err)
	}
	return nil
}

// CurrentPick devuelve el pick vigente del scope y día, o nil.
func (s *Store) CurrentPick(ctx context.Context, scope domain.Scope, day string) (*domain.Pick, error) {
	row := s.db.QueryRowContext(ctx, selectPick+`
		JOIN current_picks c ON c.pick_id = p.id
		WHERE c.scope = ? AND c.day = ?`,
		string(scope), day)

	p, err := scanPick(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.CurrentPick: %w", err)
	}
	return p, nil
}

// PendingPicks devuelve los picks pendientes cuyo evento empezó antes del
// corte, el evento más antiguo primero.
func (s *Store) PendingPicks(ctx context.Context, startedBefore time.Time) ([]domain.Pick, error) {
	rows, err := s.db.QueryContext(ctx, selectPick+`
		WHERE p.status = ? AND p.event_start <= ?
		ORDER BY p.event_start ASC`,
		string(domain.StatusPending), fmtTime(startedBefore))
	if err != nil {
		return nil, fmt.Errorf("storage.PendingPicks: query: %w", err)
	}
	defer rows.Close()

	var picks []domain.Pick
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.PendingPicks: scan: %w", err)
		}
		picks = append(picks, *p)
	}
	return picks, rows.Err()
}

// Settle transiciona un pick pendiente a un estado terminal. El guardia de
// estado en el WHERE hace la reentrada un no-op: false significa que el pick
// ya estaba liquidado.
func (s *Store) Settle(ctx context.Context, id string, status domain.PickStatus, winAmount float64, settledAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE picks SET status = ?, win_amount = ?, settled_at = ?
		WHERE id = ? AND status = ?`,
		string(status), winAmount, fmtTime(settledAt), id, string(domain.StatusPending))
	if err != nil {
		return false, fmt.Errorf("storage.Settle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.Settle: rows affected: %w", err)
	}
	return n > 0, nil
}

// GetRecord devuelve el registro de estabilidad de la clave de evento, o nil.
func (s *Store) GetRecord(ctx context.Context, eventKey string) (*domain.StabilityRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_key, grade, reason, locked_at, updated_at
		FROM stability_records WHERE event_key = ?`, eventKey)

	var rec domain.StabilityRecord
	var grade, reason, lockedAt, updatedAt string
	err := row.Scan(&rec.EventKey, &grade, &reason, &lockedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetRecord: %w", err)
	}
	rec.Grade = domain.Grade(grade)
	rec.Reason = domain.LockReason(reason)
	rec.LockedAt = parseTime(lockedAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

// PutRecord inserta o reemplaza el registro de estabilidad. El UPSERT único
// es lo que convierte el check-then-lock del guard en, de facto, un
// compare-and-set sobre este store.
func (s *Store) PutRecord(ctx context.Context, rec domain.StabilityRecord) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stability_records (event_key, grade, reason, locked_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_key) DO UPDATE SET
			grade      = excluded.grade,
			reason     = excluded.reason,
			locked_at  = excluded.locked_at,
			updated_at = excluded.updated_at`,
		rec.EventKey, string(rec.Grade), string(rec.Reason),
		fmtTime(rec.LockedAt), fmtTime(rec.UpdatedAt),
	); err != nil {
		return fmt.Errorf("storage.PutRecord: %w", err)
	}
	return nil
}

// DeleteRecord evicta un registro de estabilidad; una clave ausente no pasa
// nada.
func (s *Store) DeleteRecord(ctx context.Context, eventKey string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM stability_records WHERE event_key = ?`, eventKey); err != nil {
		return fmt.Errorf("storage.DeleteRecord: %w", err)
	}
	return nil
}

// Records devuelve todos los registros de estabilidad.
func (s *Store) Records(ctx context.Context) ([]domain.StabilityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_key, grade, reason, locked_at, updated_at FROM stability_records`)
	if err != nil {
		return nil, fmt.Errorf("storage.Records: query: %w", err)
	}
	defer rows.Close()

	var recs []domain.StabilityRecord
	for rows.Next() {
		var rec domain.StabilityRecord
		var grade, reason, lockedAt, updatedAt string
		if err := rows.Scan(&rec.EventKey, &grade, &reason, &lockedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage.Records: scan: %w", err)
		}
		rec.Grade = domain.Grade(grade)
		rec.Reason = domain.LockReason(reason)
		rec.LockedAt = parseTime(lockedAt)
		rec.UpdatedAt = parseTime(updatedAt)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

const selectPick = `
	SELECT p.id, p.scope, p.day, p.event_key, p.event_id, p.sport, p.home_team, p.away_team,
	       p.selection, p.market_type, p.price, p.line, p.units,
	       p.sc_offense, p.sc_matchup, p.sc_situation, p.sc_momentum, p.sc_market, p.sc_confidence,
	       p.grade, p.confidence, p.rationale, p.low_quality, p.status,
	       p.locked_at, p.lock_reason, p.event_start, p.created_at, p.win_amount, p.settled_at
	FROM picks p`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPick(row rowScanner) (*domain.Pick, error) {
	var p domain.Pick
	var scope, marketType, grade, status, lockReason string
	var lockedAt, eventStart, createdAt string
	var settledAt sql.NullString
	var lowQuality int

	if err := row.Scan(
		&p.ID, &scope, &p.Day, &p.EventKey, &p.EventID, &p.Sport, &p.HomeTeam, &p.AwayTeam,
		&p.Selection, &marketType, &p.Price, &p.Line, &p.Units,
		&p.Scores.Offense, &p.Scores.Matchup, &p.Scores.Situational,
		&p.Scores.Momentum, &p.Scores.MarketEdge, &p.Scores.Confidence,
		&grade, &p.Confidence, &p.Rationale, &lowQuality, &status,
		&lockedAt, &lockReason, &eventStart, &createdAt, &p.WinAmount, &settledAt,
	); err != nil {
		return nil, err
	}

	p.Scope = domain.Scope(scope)
	p.MarketType = domain.MarketType(marketType)
	p.Grade = domain.Grade(grade)
	p.Status = domain.PickStatus(status)
	p.LockReason = domain.LockReason(lockReason)
	p.LowQuality = lowQuality == 1
	p.LockedAt = parseTime(lockedAt)
	p.EventStartTime = parseTime(eventStart)
	p.CreatedAt = parseTime(createdAt)
	if settledAt.Valid {
		t := parseTime(settledAt.String)
		p.SettledAt = &t
	}
	return &p, nil
}

// pruneStability borra los registros de estabilidad que pasaron la ventana de
// retención para que la tabla siga pequeña entre reinicios. Los picks nunca
// se podan: son el historial de auditoría.
func (s *Store) pruneStability(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-stabilityRetention)
	s.db.ExecContext(ctx, `DELETE FROM stability_records WHERE updated_at < ?`, fmtTime(cutoff))
}

// fmtTime almacena RFC3339 en UTC con precisión de segundo: ancho fijo, así
// la comparación de cadenas en SQL coincide con el orden cronológico.
func fmtTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
