package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql" // registers the "libsql" driver

	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/pkg/logger"
)

const timeLayout = time.RFC3339Nano

// SQLStore persists to a libsql (SQLite-compatible) database.
type SQLStore struct {
	db        *sql.DB
	authToken string
	now       func() time.Time
	logger    logger.Logger
}

// OpenSQL connects to dsn, runs pending migrations and returns the store.
// Local databases use a "file:" DSN; remote ones a libsql:// URL.
func OpenSQL(ctx context.Context, dsn string, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sqlstore")
	}
	connStr, err := withAuthToken(dsn, s.authToken)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.HasPrefix(dsn, "file:") {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	applied, err := Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if applied > 0 {
		s.logger.Info(ctx, "database migrated", logger.Int("applied", applied))
	}
	s.db = db
	return s, nil
}

func withAuthToken(dsn, token string) (string, error) {
	if token == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	q := u.Query()
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DB exposes the underlying handle for tooling.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// inTx runs fn in a transaction and commits only when fn succeeds.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error(ctx, "rollback failed", logger.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %v: %w", what, id, err)
}

// Subjects returns all subjects ordered by id.
func (s *SQLStore) Subjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, provider, model, base_url, api_key, description FROM subjects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()
	var out []model.Subject
	for rows.Next() {
		var v model.Subject
		if err := rows.Scan(&v.ID, &v.Name, &v.Provider, &v.Model, &v.BaseURL, &v.APIKey, &v.Description); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Subject returns one subject.
func (s *SQLStore) Subject(ctx context.Context, id int64) (model.Subject, error) {
	var v model.Subject
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, provider, model, base_url, api_key, description FROM subjects WHERE id = ?`, id).
		Scan(&v.ID, &v.Name, &v.Provider, &v.Model, &v.BaseURL, &v.APIKey, &v.Description)
	if err != nil {
		return model.Subject{}, notFound(err, "subject", id)
	}
	return v, nil
}

// Dimensions returns all dimensions ordered by id.
func (s *SQLStore) Dimensions(ctx context.Context) ([]model.Dimension, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, level, COALESCE(parent_id, 0) FROM dimensions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list dimensions: %w", err)
	}
	defer rows.Close()
	var out []model.Dimension
	for rows.Next() {
		var d model.Dimension
		if err := rows.Scan(&d.ID, &d.Name, &d.Level, &d.ParentID); err != nil {
			return nil, fmt.Errorf("scan dimension: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanQuestion(sc interface{ Scan(...any) error }) (model.Question, error) {
	var (
		q  model.Question
		qt string
	)
	if err := sc.Scan(&q.ID, &q.DimensionID, &qt, &q.Content, &q.ReferenceAnswer); err != nil {
		return model.Question{}, err
	}
	t, err := model.ParseQuestionType(qt)
	if err != nil {
		return model.Question{}, fmt.Errorf("question %d: %w", q.ID, err)
	}
	q.Type = t
	return q, nil
}

// Questions returns all questions ordered by id.
func (s *SQLStore) Questions(ctx context.Context) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dimension_id, question_type, content, reference_answer FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	var out []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Question returns one question.
func (s *SQLStore) Question(ctx context.Context, id int64) (model.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dimension_id, question_type, content, reference_answer FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err != nil {
		return model.Question{}, notFound(err, "question", id)
	}
	return q, nil
}

// Setting returns the override for t.
func (s *SQLStore) Setting(ctx context.Context, t model.QuestionType) (model.Setting, error) {
	st := model.Setting{Type: t}
	err := s.db.QueryRowContext(ctx,
		`SELECT criteria, score_ceiling FROM settings WHERE question_type = ?`, t.String()).
		Scan(&st.Criteria, &st.ScoreCeiling)
	if err != nil {
		return model.Setting{}, notFound(err, "setting", t)
	}
	return st, nil
}

// ResetQuestion deletes the question's ratings, then its answers, in one transaction.
func (s *SQLStore) ResetQuestion(ctx context.Context, questionID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM ratings WHERE answer_id IN (SELECT id FROM answers WHERE question_id = ?)`, questionID); err != nil {
			return fmt.Errorf("delete ratings of question %d: %w", questionID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE question_id = ?`, questionID); err != nil {
			return fmt.Errorf("delete answers of question %d: %w", questionID, err)
		}
		return nil
	})
}

// ResetSubject deletes the subject's ratings, then its answers, in one transaction.
func (s *SQLStore) ResetSubject(ctx context.Context, subjectID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM ratings WHERE answer_id IN (SELECT id FROM answers WHERE subject_id = ?)`, subjectID); err != nil {
			return fmt.Errorf("delete ratings of subject %d: %w", subjectID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE subject_id = ?`, subjectID); err != nil {
			return fmt.Errorf("delete answers of subject %d: %w", subjectID, err)
		}
		return nil
	})
}

// SaveRatedAnswer inserts the answer and its rating in one transaction.
func (s *SQLStore) SaveRatedAnswer(ctx context.Context, a model.Answer, r model.Rating) (model.Answer, model.Rating, error) {
	if a.QuestionID == 0 || a.SubjectID == 0 {
		return model.Answer{}, model.Rating{}, fmt.Errorf("answer without question or subject: %w", ErrInvalidRecord)
	}
	now := s.now().UTC()
	a.CreatedAt = now
	r.CreatedAt = now
	r.SubjectID = a.SubjectID
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO answers (question_id, subject_id, content, created_at) VALUES (?, ?, ?, ?)`,
			a.QuestionID, a.SubjectID, a.Content, now.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if a.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("answer id: %w", err)
		}
		r.AnswerID = a.ID
		res, err = tx.ExecContext(ctx,
			`INSERT INTO ratings (answer_id, subject_id, score, comment, is_responsive, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			r.AnswerID, r.SubjectID, r.Score, r.Comment, boolToInt(r.IsResponsive), now.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("rating id: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Answer{}, model.Rating{}, err
	}
	return a, r, nil
}

// AnswersForQuestion returns the question's answers ordered by id.
func (s *SQLStore) AnswersForQuestion(ctx context.Context, questionID int64) ([]model.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, subject_id, content, created_at FROM answers WHERE question_id = ? ORDER BY id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	var out []model.Answer
	for rows.Next() {
		var (
			a  model.Answer
			ts string
		)
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.SubjectID, &a.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.CreatedAt, _ = time.Parse(timeLayout, ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

// RatingForAnswer returns the rating attached to an answer.
func (s *SQLStore) RatingForAnswer(ctx context.Context, answerID int64) (model.Rating, error) {
	var (
		r          model.Rating
		responsive int
		ts         string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, answer_id, subject_id, score, comment, is_responsive, created_at FROM ratings WHERE answer_id = ?`, answerID).
		Scan(&r.ID, &r.AnswerID, &r.SubjectID, &r.Score, &r.Comment, &responsive, &ts)
	if err != nil {
		return model.Rating{}, notFound(err, "rating for answer", answerID)
	}
	r.IsResponsive = responsive == 1
	r.CreatedAt, _ = time.Parse(timeLayout, ts)
	return r, nil
}

// RatedAnswers joins ratings with answers and questions in rating id order.
func (s *SQLStore) RatedAnswers(ctx context.Context) ([]model.RatedAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.subject_id, q.id, q.question_type, q.dimension_id, r.score, r.is_responsive
		FROM ratings r
		JOIN answers a ON a.id = r.answer_id
		JOIN questions q ON q.id = a.question_id
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("list rated answers: %w", err)
	}
	defer rows.Close()
	var out []model.RatedAnswer
	for rows.Next() {
		var (
			ra         model.RatedAnswer
			qt         string
			responsive int
		)
		if err := rows.Scan(&ra.SubjectID, &ra.QuestionID, &qt, &ra.DimensionID, &ra.Score, &responsive); err != nil {
			return nil, fmt.Errorf("scan rated answer: %w", err)
		}
		if ra.QuestionType, err = model.ParseQuestionType(qt); err != nil {
			return nil, err
		}
		ra.IsResponsive = responsive == 1
		out = append(out, ra)
	}
	return out, rows.Err()
}

// InsertSnapshot appends a snapshot.
func (s *SQLStore) InsertSnapshot(ctx context.Context, snap model.Snapshot) (model.Snapshot, error) {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now()
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	meta, err := json.Marshal(snap.Metadata)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("encode snapshot metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (created_at, dimensions_json, rows_json, metadata_json) VALUES (?, ?, ?, ?)`,
		snap.CreatedAt.Format(timeLayout), string(snap.Dimensions), string(snap.Rows), string(meta))
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if snap.ID, err = res.LastInsertId(); err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot id: %w", err)
	}
	return snap, nil
}

func scanSnapshot(sc interface{ Scan(...any) error }) (model.Snapshot, error) {
	var (
		snap            model.Snapshot
		ts, dims, r, md string
	)
	if err := sc.Scan(&snap.ID, &ts, &dims, &r, &md); err != nil {
		return model.Snapshot{}, err
	}
	created, err := time.Parse(timeLayout, ts)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot %d timestamp: %w", snap.ID, err)
	}
	snap.CreatedAt = created
	snap.Dimensions = []byte(dims)
	snap.Rows = []byte(r)
	if err := json.Unmarshal([]byte(md), &snap.Metadata); err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot %d metadata: %w", snap.ID, err)
	}
	return snap, nil
}

// ListSnapshots returns snapshots newest first, optionally limited to one UTC day.
func (s *SQLStore) ListSnapshots(ctx context.Context, f SnapshotFilter) ([]model.Snapshot, error) {
	query := `SELECT id, created_at, dimensions_json, rows_json, metadata_json FROM snapshots`
	var args []any
	if !f.Day.IsZero() {
		query += ` WHERE substr(created_at, 1, 10) = ?`
		args = append(args, f.Day.UTC().Format(time.DateOnly))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetSnapshot returns one snapshot.
func (s *SQLStore) GetSnapshot(ctx context.Context, id int64) (model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, dimensions_json, rows_json, metadata_json FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if err != nil {
		return model.Snapshot{}, notFound(err, "snapshot", id)
	}
	return snap, nil
}

// DeleteSnapshot removes a snapshot.
func (s *SQLStore) DeleteSnapshot(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertDimension inserts or replaces a dimension.
func (s *SQLStore) UpsertDimension(ctx context.Context, d model.Dimension) error {
	if d.ID == 0 {
		return fmt.Errorf("dimension without id: %w", ErrInvalidRecord)
	}
	var parent any
	if d.ParentID != 0 {
		parent = d.ParentID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dimensions (id, name, level, parent_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, level = excluded.level, parent_id = excluded.parent_id`,
		d.ID, d.Name, d.Level, parent)
	if err != nil {
		return fmt.Errorf("upsert dimension %d: %w", d.ID, err)
	}
	return nil
}

// UpsertSubject inserts or updates a subject matched by name.
func (s *SQLStore) UpsertSubject(ctx context.Context, subj model.Subject) (model.Subject, error) {
	if subj.Name == "" {
		return model.Subject{}, fmt.Errorf("subject without name: %w", ErrInvalidRecord)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subjects (name, provider, model, base_url, api_key, description) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET provider = excluded.provider, model = excluded.model,
				base_url = excluded.base_url, api_key = excluded.api_key, description = excluded.description`,
			subj.Name, subj.Provider, subj.Model, subj.BaseURL, subj.APIKey, subj.Description)
		if err != nil {
			return fmt.Errorf("upsert subject %q: %w", subj.Name, err)
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM subjects WHERE name = ?`, subj.Name).Scan(&subj.ID)
	})
	if err != nil {
		return model.Subject{}, err
	}
	return subj, nil
}

// UpsertQuestion inserts a question, or replaces it when ID is set.
func (s *SQLStore) UpsertQuestion(ctx context.Context, q model.Question) (model.Question, error) {
	if !q.Type.Valid() {
		return model.Question{}, fmt.Errorf("question type %d: %w", int(q.Type), ErrInvalidRecord)
	}
	if q.ID != 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO questions (id, dimension_id, question_type, content, reference_answer) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET dimension_id = excluded.dimension_id, question_type = excluded.question_type,
				content = excluded.content, reference_answer = excluded.reference_answer`,
			q.ID, q.DimensionID, q.Type.String(), q.Content, q.ReferenceAnswer)
		if err != nil {
			return model.Question{}, fmt.Errorf("upsert question %d: %w", q.ID, err)
		}
		return q, nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (dimension_id, question_type, content, reference_answer) VALUES (?, ?, ?, ?)`,
		q.DimensionID, q.Type.String(), q.Content, q.ReferenceAnswer)
	if err != nil {
		return model.Question{}, fmt.Errorf("insert question: %w", err)
	}
	if q.ID, err = res.LastInsertId(); err != nil {
		return model.Question{}, fmt.Errorf("question id: %w", err)
	}
	return q, nil
}

// UpsertSetting replaces the override for a question type.
func (s *SQLStore) UpsertSetting(ctx context.Context, st model.Setting) error {
	if !st.Type.Valid() {
		return fmt.Errorf("setting type %d: %w", int(st.Type), ErrInvalidRecord)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (question_type, criteria, score_ceiling) VALUES (?, ?, ?)
		ON CONFLICT(question_type) DO UPDATE SET criteria = excluded.criteria, score_ceiling = excluded.score_ceiling`,
		st.Type.String(), st.Criteria, st.ScoreCeiling)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", st.Type, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
