package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Profiles, keyed by the deterministic record key of the owner
CREATE TABLE IF NOT EXISTS user_profiles (
    record_key UUID PRIMARY KEY,
    owner VARCHAR(128) NOT NULL UNIQUE,
    display_name VARCHAR(32) NOT NULL,
    xp BIGINT NOT NULL DEFAULT 0,
    level BIGINT NOT NULL DEFAULT 1,
    streak BIGINT NOT NULL DEFAULT 0,
    quizzes_completed BIGINT NOT NULL DEFAULT 0,
    achievements_earned BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    last_active BIGINT NOT NULL,

    CONSTRAINT valid_counters CHECK (
        xp >= 0 AND level >= 1 AND streak >= 0 AND
        quizzes_completed >= 0 AND achievements_earned >= 0
    ),
    CONSTRAINT valid_activity CHECK (last_active >= created_at)
);

CREATE INDEX IF NOT EXISTS idx_user_profiles_xp ON user_profiles (xp DESC, owner ASC);

-- Append-only quiz attempts
CREATE TABLE IF NOT EXISTS quiz_results (
    seq BIGSERIAL,
    record_key UUID PRIMARY KEY,
    owner VARCHAR(128) NOT NULL REFERENCES user_profiles (owner),
    quiz_id VARCHAR(64) NOT NULL,
    score SMALLINT NOT NULL,
    total_questions SMALLINT NOT NULL,
    xp_earned BIGINT NOT NULL,
    completed_at BIGINT NOT NULL,

    CONSTRAINT unique_attempt UNIQUE (owner, quiz_id),
    CONSTRAINT valid_score CHECK (
        score >= 0 AND total_questions <= 255 AND score <= total_questions
    ),
    CONSTRAINT valid_xp_earned CHECK (xp_earned >= 0)
);

CREATE INDEX IF NOT EXISTS idx_quiz_results_owner_completed ON quiz_results (owner, completed_at DESC, seq DESC);

-- Append-only achievement grants
CREATE TABLE IF NOT EXISTS achievements (
    seq BIGSERIAL,
    record_key UUID PRIMARY KEY,
    owner VARCHAR(128) NOT NULL REFERENCES user_profiles (owner),
    achievement_id VARCHAR(64) NOT NULL,
    achievement_name VARCHAR(128) NOT NULL,
    tier VARCHAR(16) NOT NULL,
    awarded_at BIGINT NOT NULL,

    CONSTRAINT unique_grant UNIQUE (owner, achievement_id),
    CONSTRAINT valid_tier CHECK (tier IN ('Bronze', 'Silver', 'Gold', 'Platinum'))
);

CREATE INDEX IF NOT EXISTS idx_achievements_owner_awarded ON achievements (owner, awarded_at DESC, seq DESC);

-- Records are never mutated or deleted
CREATE OR REPLACE FUNCTION reject_record_change()
RETURNS TRIGGER AS $$
BEGIN
    RAISE EXCEPTION '% rows are append-only', TG_TABLE_NAME;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS quiz_results_append_only ON quiz_results;
CREATE TRIGGER quiz_results_append_only
    BEFORE UPDATE OR DELETE ON quiz_results
    FOR EACH ROW
    EXECUTE FUNCTION reject_record_change();

DROP TRIGGER IF EXISTS achievements_append_only ON achievements;
CREATE TRIGGER achievements_append_only
    BEFORE UPDATE OR DELETE ON achievements
    FOR EACH ROW
    EXECUTE FUNCTION reject_record_change();
`

const migration001Down = `
DROP TRIGGER IF EXISTS achievements_append_only ON achievements;
DROP TRIGGER IF EXISTS quiz_results_append_only ON quiz_results;
DROP FUNCTION IF EXISTS reject_record_change();
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS quiz_results;
DROP TABLE IF EXISTS user_profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_ledger",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
	}
}
