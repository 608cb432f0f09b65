// Package sqlite is an embedded ledger host on modernc.org/sqlite. The pool
// is pinned to one connection, so transactions run one at a time.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/sqlite/migrations"
)

// Ledger implements progression.Host on SQLite.
type Ledger struct {
	db *sql.DB
}

var _ progression.Host = (*Ledger)(nil)

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ApplyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Ping implements progression.Host.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close implements progression.Host.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// WithinTx implements progression.Ledger.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progression.Tx) error) (err error) {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &ledgerTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) CreateProfile(ctx context.Context, p *progression.Profile) error {
	const op = "CreateProfile"
	row, err := persistence.NewProfileRow(op, p)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO user_profiles (
		   record_key, owner, display_name, xp, level, streak,
		   quizzes_completed, achievements_earned, created_at, last_active
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Key, row.Owner, row.DisplayName, row.XP, row.Level, row.Streak,
		row.QuizzesCompleted, row.AchievementsEarned, row.CreatedAt, row.LastActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return progression.NewProfileExistsError(op, p.Owner)
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetProfileForUpdate(ctx context.Context, owner shared.Owner) (*progression.Profile, error) {
	// BEGIN IMMEDIATE already holds the write lock
	return scanProfile("GetProfileForUpdate", owner, t.tx.QueryRowContext(ctx, selectProfile, owner.String()))
}

func (t *ledgerTx) UpdateProfile(ctx context.Context, p *progression.Profile) error {
	const op = "UpdateProfile"
	row, err := persistence.NewProfileRow(op, p)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE user_profiles
		    SET xp = ?, level = ?, streak = ?, quizzes_completed = ?,
		        achievements_earned = ?, last_active = ?
		  WHERE owner = ?`,
		row.XP, row.Level, row.Streak, row.QuizzesCompleted,
		row.AchievementsEarned, row.LastActive, row.Owner,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n == 0 {
		return progression.NewProfileNotFoundError(op, p.Owner)
	}
	return nil
}

func (t *ledgerTx) CreateQuizAttempt(ctx context.Context, a *progression.QuizAttempt) error {
	const op = "CreateQuizAttempt"
	row, err := persistence.NewAttemptRow(op, a)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO quiz_results (
		   record_key, owner, quiz_id, score, total_questions, xp_earned, completed_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.Key, row.User, row.QuizID, row.Score, row.TotalQuestions, row.XPEarned, row.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return progression.NewQuizAlreadySubmittedError(op, a.User, a.QuizID)
		}
		return fmt.Errorf("create quiz attempt: %w", err)
	}
	return nil
}

func (t *ledgerTx) CreateAchievement(ctx context.Context, a *progression.Achievement) error {
	const op = "CreateAchievement"
	row := persistence.NewAchievementRow(a)
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO achievements (
		   record_key, owner, achievement_id, achievement_name, tier, awarded_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		row.Key, row.User, row.AchievementID, row.AchievementName, row.Tier, row.AwardedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return progression.NewAchievementAlreadyGrantedError(op, a.User, a.AchievementID)
		}
		return fmt.Errorf("create achievement: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READER
// ══════════════════════════════════════════════════════════════════════════════

const selectProfile = `
SELECT record_key, owner, display_name, xp, level, streak,
       quizzes_completed, achievements_earned, created_at, last_active
  FROM user_profiles
 WHERE owner = ?`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfileRow(op string, s scanner) (*progression.Profile, error) {
	var r persistence.ProfileRow
	if err := s.Scan(&r.Key, &r.Owner, &r.DisplayName, &r.XP, &r.Level, &r.Streak,
		&r.QuizzesCompleted, &r.AchievementsEarned, &r.CreatedAt, &r.LastActive); err != nil {
		return nil, err
	}
	return r.Profile(op)
}

func scanProfile(op string, owner shared.Owner, row *sql.Row) (*progression.Profile, error) {
	p, err := scanProfileRow(op, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, progression.NewProfileNotFoundError(op, owner)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetProfile implements progression.Reader.
func (l *Ledger) GetProfile(ctx context.Context, owner shared.Owner) (*progression.Profile, error) {
	return scanProfile("GetProfile", owner, l.db.QueryRowContext(ctx, selectProfile, owner.String()))
}

const attemptColumns = `record_key, owner, quiz_id, score, total_questions, xp_earned, completed_at`

func scanAttempt(op string, s scanner) (*progression.QuizAttempt, error) {
	var r persistence.AttemptRow
	if err := s.Scan(&r.Key, &r.User, &r.QuizID, &r.Score, &r.TotalQuestions, &r.XPEarned, &r.CompletedAt); err != nil {
		return nil, err
	}
	return r.Attempt(op)
}

// GetQuizAttempt implements progression.Reader.
func (l *Ledger) GetQuizAttempt(ctx context.Context, owner shared.Owner, quizID string) (*progression.QuizAttempt, error) {
	const op = "GetQuizAttempt"
	row := l.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM quiz_results WHERE owner = ? AND quiz_id = ?`,
		owner.String(), quizID,
	)
	a, err := scanAttempt(op, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, progression.NewQuizAttemptNotFoundError(op, owner, quizID)
		}
		return nil, fmt.Errorf("get quiz attempt: %w", err)
	}
	return a, nil
}

// ListQuizAttempts implements progression.Reader.
func (l *Ledger) ListQuizAttempts(ctx context.Context, owner shared.Owner, page shared.Pagination) ([]*progression.QuizAttempt, error) {
	const op = "ListQuizAttempts"
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+attemptColumns+`
		   FROM quiz_results
		  WHERE owner = ?
		  ORDER BY completed_at DESC, rowid DESC
		  LIMIT ? OFFSET ?`,
		owner.String(), page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	defer rows.Close()

	out := make([]*progression.QuizAttempt, 0, page.Limit())
	for rows.Next() {
		a, err := scanAttempt(op, rows)
		if err != nil {
			return nil, fmt.Errorf("list quiz attempts: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	return out, nil
}

const achievementColumns = `record_key, owner, achievement_id, achievement_name, tier, awarded_at`

func scanAchievement(s scanner) (*progression.Achievement, error) {
	var r persistence.AchievementRow
	if err := s.Scan(&r.Key, &r.User, &r.AchievementID, &r.AchievementName, &r.Tier, &r.AwardedAt); err != nil {
		return nil, err
	}
	return r.Achievement()
}

// GetAchievement implements progression.Reader.
func (l *Ledger) GetAchievement(ctx context.Context, owner shared.Owner, achievementID string) (*progression.Achievement, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE owner = ? AND achievement_id = ?`,
		owner.String(), achievementID,
	)
	a, err := scanAchievement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, progression.NewAchievementNotFoundError("GetAchievement", owner, achievementID)
		}
		return nil, fmt.Errorf("get achievement: %w", err)
	}
	return a, nil
}

// ListAchievements implements progression.Reader.
func (l *Ledger) ListAchievements(ctx context.Context, owner shared.Owner, page shared.Pagination) ([]*progression.Achievement, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+achievementColumns+`
		   FROM achievements
		  WHERE owner = ?
		  ORDER BY awarded_at DESC, rowid DESC
		  LIMIT ? OFFSET ?`,
		owner.String(), page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	out := make([]*progression.Achievement, 0, page.Limit())
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("list achievements: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return out, nil
}

// TopProfiles implements progression.Reader.
func (l *Ledger) TopProfiles(ctx context.Context, limit int) ([]*progression.Profile, error) {
	const op = "TopProfiles"
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT record_key, owner, display_name, xp, level, streak,
		        quizzes_completed, achievements_earned, created_at, last_active
		   FROM user_profiles
		  ORDER BY xp DESC, owner ASC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top profiles: %w", err)
	}
	defer rows.Close()

	var out []*progression.Profile
	for rows.Next() {
		p, err := scanProfileRow(op, rows)
		if err != nil {
			return nil, fmt.Errorf("top profiles: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top profiles: %w", err)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
