package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/selve/internal/domain"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStore implements Repository on SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	driver  string
	writeMu sync.Mutex // serializes SQLite write transactions to prevent SQLITE_BUSY on lock upgrade
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers; pragmas apply to every pooled connection.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, DriverSQLite)
}

// NewPostgres creates a new Postgres-backed repository.
func NewPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, DriverPostgres)
}

func newSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		status TEXT NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT,
		completed_at BIGINT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
	`CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		question_id TEXT NOT NULL,
		value_json TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE (session_id, question_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_answers_session_created ON answers(session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		title TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		section_id TEXT NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		config_json TEXT,
		required INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_section ON questions(section_id, position)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		section_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL
	)`,
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $N for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lockWrites serializes write transactions on SQLite. Postgres relies on row locks.
func (s *SQLStore) lockWrites() func() {
	if s.driver != DriverSQLite {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

// Driver returns the database driver name.
func (s *SQLStore) Driver() string {
	return s.driver
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a new session record.
func (s *SQLStore) CreateSession(ctx context.Context, session *domain.Session) error {
	unlock := s.lockWrites()
	defer unlock()

	query := s.rebind(`
		INSERT INTO sessions (id, user_id, status, current_step, metadata_json, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		session.ID, nullString(session.UserID), string(session.Status), session.CurrentStep,
		nullJSON(session.Metadata), nullTime(session.CompletedAt),
		session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `id, user_id, status, current_step, metadata_json, completed_at, created_at, updated_at`

// GetSession retrieves a session by ID.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var userID, metadata sql.NullString
	var status string
	var completedAt sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(
		&session.ID, &userID, &status, &session.CurrentStep,
		&metadata, &completedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatus(status)
	if userID.Valid {
		session.UserID = &userID.String
	}
	if metadata.Valid {
		session.Metadata = []byte(metadata.String)
	}
	if completedAt.Valid {
		ts := time.Unix(0, completedAt.Int64).UTC()
		session.CompletedAt = &ts
	}
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	session.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &session, nil
}

// forUpdate returns the row-lock clause for the driver. SQLite writers are
// already serialized by writeMu.
func (s *SQLStore) forUpdate() string {
	if s.Driver() == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// UpdateSession reads the session under a write lock, applies mutate and
// writes the result back in the same transaction.
func (s *SQLStore) UpdateSession(ctx context.Context, sessionID string, mutate func(*domain.Session) error) (*domain.Session, error) {
	unlock := s.lockWrites()
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back session transaction", "error", rbErr, "session_id", sessionID)
		}
	}()

	session, err := scanSession(tx.QueryRowContext(ctx,
		s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`+s.forUpdate()), sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}

	if err := mutate(session); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE sessions
		SET status = ?, current_step = ?, metadata_json = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`),
		string(session.Status), session.CurrentStep, nullJSON(session.Metadata),
		nullTime(session.CompletedAt), session.UpdatedAt.UnixNano(), session.ID,
	); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return session, nil
}

// CompleteSession transitions a session to completed exactly once.
func (s *SQLStore) CompleteSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	unlock := s.lockWrites()
	defer unlock()

	query := s.rebind(`
		UPDATE sessions
		SET status = ?, completed_at = COALESCE(completed_at, ?), updated_at = ?
		WHERE id = ? AND status <> ?`)

	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusCompleted), at.UnixNano(), at.UnixNano(),
		sessionID, string(domain.StatusCompleted),
	)
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM sessions WHERE id = ?`), sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("complete session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return false, nil
}

// UpsertAnswer stores the answer and recounts the session's current step.
func (s *SQLStore) UpsertAnswer(ctx context.Context, answer *domain.Answer) (*domain.Answer, int, error) {
	unlock := s.lockWrites()
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back answer transaction", "error", rbErr, "session_id", answer.SessionID)
		}
	}()

	// Lock the session row so concurrent writers recount one at a time.
	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM sessions WHERE id = ?`+s.forUpdate()), answer.SessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("upsert answer for session %s: %w", answer.SessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("check session: %w", err)
	}

	upsert := s.rebind(`
		INSERT INTO answers (id, session_id, question_id, value_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, question_id) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at`)
	if _, err := tx.ExecContext(ctx, upsert,
		answer.ID, answer.SessionID, answer.QuestionID, string(answer.Value),
		answer.CreatedAt.UnixNano(), answer.UpdatedAt.UnixNano(),
	); err != nil {
		return nil, 0, fmt.Errorf("upsert answer: %w", err)
	}

	stored, err := scanAnswer(tx.QueryRowContext(ctx, s.rebind(`
		SELECT id, session_id, question_id, value_json, created_at, updated_at
		FROM answers WHERE session_id = ? AND question_id = ?`),
		answer.SessionID, answer.QuestionID))
	if err != nil {
		return nil, 0, fmt.Errorf("read back answer: %w", err)
	}

	var step int
	if err := tx.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(DISTINCT question_id) FROM answers WHERE session_id = ?`),
		answer.SessionID).Scan(&step); err != nil {
		return nil, 0, fmt.Errorf("count answers: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE sessions SET current_step = ?, updated_at = ? WHERE id = ?`),
		step, answer.UpdatedAt.UnixNano(), answer.SessionID); err != nil {
		return nil, 0, fmt.Errorf("update current step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit answer: %w", err)
	}
	return stored, step, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnswer(row rowScanner) (*domain.Answer, error) {
	var a domain.Answer
	var value string
	var createdAt, updatedAt int64
	if err := row.Scan(&a.ID, &a.SessionID, &a.QuestionID, &value, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Value = []byte(value)
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &a, nil
}

// ListAnswers returns a session's answers ordered by creation time.
func (s *SQLStore) ListAnswers(ctx context.Context, sessionID string) ([]*domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, question_id, value_json, created_at, updated_at
		FROM answers WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close answer rows", "error", closeErr)
		}
	}()

	answers := []*domain.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer row: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, nil
}

// ListQuestions returns all questions ordered by position.
func (s *SQLStore) ListQuestions(ctx context.Context) ([]*domain.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, section_id, type, text, config_json, required
		FROM questions ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close question rows", "error", closeErr)
		}
	}()

	questions := []*domain.Question{}
	for rows.Next() {
		var q domain.Question
		var config sql.NullString
		var required int64
		if err := rows.Scan(&q.ID, &q.Order, &q.SectionID, &q.Type, &q.Text, &config, &required); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		if config.Valid && config.String != "" {
			q.Config = []byte(config.String)
		}
		q.Required = required != 0
		questions = append(questions, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

// ListSections returns all sections ordered by position.
func (s *SQLStore) ListSections(ctx context.Context) ([]*domain.Section, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, position, title FROM sections ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close section rows", "error", closeErr)
		}
	}()

	sections := []*domain.Section{}
	for rows.Next() {
		var sec domain.Section
		if err := rows.Scan(&sec.ID, &sec.Order, &sec.Title); err != nil {
			return nil, fmt.Errorf("scan section row: %w", err)
		}
		sections = append(sections, &sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return sections, nil
}

// ListCheckpoints returns all checkpoints ordered by section and position.
func (s *SQLStore) ListCheckpoints(ctx context.Context) ([]*domain.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, position, title, message
		FROM checkpoints ORDER BY section_id ASC, position ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close checkpoint rows", "error", closeErr)
		}
	}()

	checkpoints := []*domain.Checkpoint{}
	for rows.Next() {
		var cp domain.Checkpoint
		if err := rows.Scan(&cp.ID, &cp.SectionID, &cp.Order, &cp.Title, &cp.Message); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

// SaveCatalog upserts the question bank in one transaction.
func (s *SQLStore) SaveCatalog(ctx context.Context, catalog *domain.Catalog) error {
	unlock := s.lockWrites()
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back catalog transaction", "error", rbErr)
		}
	}()

	sectionQuery := s.rebind(`
		INSERT INTO sections (id, position, title) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET position = excluded.position, title = excluded.title`)
	for _, sec := range catalog.Sections {
		if _, err := tx.ExecContext(ctx, sectionQuery, sec.ID, sec.Order, sec.Title); err != nil {
			return fmt.Errorf("upsert section %s: %w", sec.ID, err)
		}
	}

	questionQuery := s.rebind(`
		INSERT INTO questions (id, position, section_id, type, text, config_json, required)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			position = excluded.position,
			section_id = excluded.section_id,
			type = excluded.type,
			text = excluded.text,
			config_json = excluded.config_json,
			required = excluded.required`)
	for _, q := range catalog.Questions {
		if _, err := tx.ExecContext(ctx, questionQuery,
			q.ID, q.Order, q.SectionID, q.Type, q.Text, nullJSON(q.Config), boolToInt64(q.Required),
		); err != nil {
			return fmt.Errorf("upsert question %s: %w", q.ID, err)
		}
	}

	checkpointQuery := s.rebind(`
		INSERT INTO checkpoints (id, section_id, position, title, message) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			section_id = excluded.section_id,
			position = excluded.position,
			title = excluded.title,
			message = excluded.message`)
	for _, cp := range catalog.Checkpoints {
		if _, err := tx.ExecContext(ctx, checkpointQuery, cp.ID, cp.SectionID, cp.Order, cp.Title, cp.Message); err != nil {
			return fmt.Errorf("upsert checkpoint %s: %w", cp.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog: %w", err)
	}
	return nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullJSON(raw []byte) interface{} {
	if raw == nil {
		return nil
	}
	return string(raw)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
