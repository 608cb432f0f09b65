package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence"
)

// Ledger implements progression.Host on PostgreSQL.
type Ledger struct {
	conn *Connection
	opts TxOptions
}

var _ progression.Host = (*Ledger)(nil)

// NewLedger wraps an open connection. Run the Migrator before first use.
func NewLedger(conn *Connection) *Ledger {
	return &Ledger{conn: conn, opts: DefaultTxOptions()}
}

// Open connects, applies pending migrations, and returns a ready ledger.
func Open(ctx context.Context, cfg Config) (*Ledger, error) {
	conn, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return NewLedger(conn), nil
}

// Ping implements progression.Host.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.conn.Ping(ctx)
}

// Close implements progression.Host.
func (l *Ledger) Close() error {
	l.conn.Close()
	return nil
}

// WithinTx implements progression.Ledger.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progression.Tx) error) error {
	return l.conn.WithTx(ctx, l.opts, func(tx pgx.Tx) error {
		if err := fn(ctx, &ledgerTx{tx: tx}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) CreateProfile(ctx context.Context, p *progression.Profile) error {
	const op = "CreateProfile"
	row, err := persistence.NewProfileRow(op, p)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO user_profiles (
		   record_key, owner, display_name, xp, level, streak,
		   quizzes_completed, achievements_earned, created_at, last_active
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		row.Key, row.Owner, row.DisplayName, row.XP, row.Level, row.Streak,
		row.QuizzesCompleted, row.AchievementsEarned, row.CreatedAt, row.LastActive,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return progression.NewProfileExistsError(op, p.Owner)
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetProfileForUpdate(ctx context.Context, owner shared.Owner) (*progression.Profile, error) {
	return scanProfile("GetProfileForUpdate", owner, t.tx.QueryRow(ctx, selectProfile+` FOR UPDATE`, owner.String()))
}

func (t *ledgerTx) UpdateProfile(ctx context.Context, p *progression.Profile) error {
	const op = "UpdateProfile"
	row, err := persistence.NewProfileRow(op, p)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_profiles
		    SET xp = $1, level = $2, streak = $3, quizzes_completed = $4,
		        achievements_earned = $5, last_active = $6
		  WHERE owner = $7`,
		row.XP, row.Level, row.Streak, row.QuizzesCompleted,
		row.AchievementsEarned, row.LastActive, row.Owner,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	_, err = t.tx.Exec(ctx,
		`INSERT INTO quiz_results (
		   record_key, owner, quiz_id, score, total_questions, xp_earned, completed_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.Key, row.User, row.QuizID, row.Score, row.TotalQuestions, row.XPEarned, row.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return progression.NewQuizAlreadySubmittedError(op, a.User, a.QuizID)
		}
		return fmt.Errorf("failed to create quiz attempt: %w", err)
	}
	return nil
}

func (t *ledgerTx) CreateAchievement(ctx context.Context, a *progression.Achievement) error {
	const op = "CreateAchievement"
	row := persistence.NewAchievementRow(a)
	_, err := t.tx.Exec(ctx,
		`INSERT INTO achievements (
		   record_key, owner, achievement_id, achievement_name, tier, awarded_at
		 ) VALUES ($1, $2, $3, $4, $5, $6)`,
		row.Key, row.User, row.AchievementID, row.AchievementName, row.Tier, row.AwardedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return progression.NewAchievementAlreadyGrantedError(op, a.User, a.AchievementID)
		}
		return fmt.Errorf("failed to create achievement: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READER
// ══════════════════════════════════════════════════════════════════════════════

const profileColumns = `record_key::text, owner, display_name, xp, level, streak,
       quizzes_completed, achievements_earned, created_at, last_active`

const selectProfile = `SELECT ` + profileColumns + ` FROM user_profiles WHERE owner = $1`

func scanProfileRow(op string, row pgx.Row) (*progression.Profile, error) {
	var r persistence.ProfileRow
	if err := row.Scan(&r.Key, &r.Owner, &r.DisplayName, &r.XP, &r.Level, &r.Streak,
		&r.QuizzesCompleted, &r.AchievementsEarned, &r.CreatedAt, &r.LastActive); err != nil {
		return nil, err
	}
	return r.Profile(op)
}

func scanProfile(op string, owner shared.Owner, row pgx.Row) (*progression.Profile, error) {
	p, err := scanProfileRow(op, row)
	if err != nil {
		if IsNoRows(err) {
			return nil, progression.NewProfileNotFoundError(op, owner)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetProfile implements progression.Reader.
func (l *Ledger) GetProfile(ctx context.Context, owner shared.Owner) (*progression.Profile, error) {
	return scanProfile("GetProfile", owner, l.conn.Pool().QueryRow(ctx, selectProfile, owner.String()))
}

const attemptColumns = `record_key::text, owner, quiz_id, score, total_questions, xp_earned, completed_at`

func scanAttempt(op string, row pgx.Row) (*progression.QuizAttempt, error) {
	var r persistence.AttemptRow
	if err := row.Scan(&r.Key, &r.User, &r.QuizID, &r.Score, &r.TotalQuestions, &r.XPEarned, &r.CompletedAt); err != nil {
		return nil, err
	}
	return r.Attempt(op)
}

// GetQuizAttempt implements progression.Reader.
func (l *Ledger) GetQuizAttempt(ctx context.Context, owner shared.Owner, quizID string) (*progression.QuizAttempt, error) {
	const op = "GetQuizAttempt"
	row := l.conn.Pool().QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_results WHERE owner = $1 AND quiz_id = $2`,
		owner.String(), quizID,
	)
	a, err := scanAttempt(op, row)
	if err != nil {
		if IsNoRows(err) {
			return nil, progression.NewQuizAttemptNotFoundError(op, owner, quizID)
		}
		return nil, fmt.Errorf("failed to get quiz attempt: %w", err)
	}
	return a, nil
}

// ListQuizAttempts implements progression.Reader.
func (l *Ledger) ListQuizAttempts(ctx context.Context, owner shared.Owner, page shared.Pagination) ([]*progression.QuizAttempt, error) {
	const op = "ListQuizAttempts"
	rows, err := l.conn.Pool().Query(ctx,
		`SELECT `+attemptColumns+`
		   FROM quiz_results
		  WHERE owner = $1
		  ORDER BY completed_at DESC, seq DESC
		  LIMIT $2 OFFSET $3`,
		owner.String(), page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz attempts: %w", err)
	}
	defer rows.Close()

	out := make([]*progression.QuizAttempt, 0, page.Limit())
	for rows.Next() {
		a, err := scanAttempt(op, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list quiz attempts: %w", err)
	}
	return out, nil
}

const achievementColumns = `record_key::text, owner, achievement_id, achievement_name, tier, awarded_at`

func scanAchievement(row pgx.Row) (*progression.Achievement, error) {
	var r persistence.AchievementRow
	if err := row.Scan(&r.Key, &r.User, &r.AchievementID, &r.AchievementName, &r.Tier, &r.AwardedAt); err != nil {
		return nil, err
	}
	return r.Achievement()
}

// GetAchievement implements progression.Reader.
func (l *Ledger) GetAchievement(ctx context.Context, owner shared.Owner, achievementID string) (*progression.Achievement, error) {
	row := l.conn.Pool().QueryRow(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE owner = $1 AND achievement_id = $2`,
		owner.String(), achievementID,
	)
	a, err := scanAchievement(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, progression.NewAchievementNotFoundError("GetAchievement", owner, achievementID)
		}
		return nil, fmt.Errorf("failed to get achievement: %w", err)
	}
	return a, nil
}

// ListAchievements implements progression.Reader.
func (l *Ledger) ListAchievements(ctx context.Context, owner shared.Owner, page shared.Pagination) ([]*progression.Achievement, error) {
	rows, err := l.conn.Pool().Query(ctx,
		`SELECT `+achievementColumns+`
		   FROM achievements
		  WHERE owner = $1
		  ORDER BY awarded_at DESC, seq DESC
		  LIMIT $2 OFFSET $3`,
		owner.String(), page.Limit(), page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	out := make([]*progression.Achievement, 0, page.Limit())
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return out, nil
}

// TopProfiles implements progression.Reader.
func (l *Ledger) TopProfiles(ctx context.Context, limit int) ([]*progression.Profile, error) {
	const op = "TopProfiles"
	query := `SELECT ` + profileColumns + ` FROM user_profiles ORDER BY xp DESC, owner ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := l.conn.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top profiles: %w", err)
	}
	defer rows.Close()

	var out []*progression.Profile
	for rows.Next() {
		p, err := scanProfileRow(op, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query top profiles: %w", err)
	}
	return out, nil
}
