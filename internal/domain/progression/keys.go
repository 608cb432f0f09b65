package progression

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// RecordType names the kind of record a key addresses.
type RecordType string

const (
	RecordProfile     RecordType = "user_profile"
	RecordQuizAttempt RecordType = "quiz_result"
	RecordAchievement RecordType = "achievement"
)

// keyNamespace roots every record key. Changing it re-keys all storage.
var keyNamespace = uuid.MustParse("6f9d4a3e-2c1b-5e8f-9a7d-0b3c4e5f6a71")

// RecordKey derives the deterministic storage key for a record from its type,
// owner and optional extra key. Components are length-prefixed so distinct
// inputs never collide on concatenation.
func RecordKey(rt RecordType, owner shared.Owner, extra string) uuid.UUID {
	buf := make([]byte, 0, len(rt)+len(owner)+len(extra)+3*binary.MaxVarintLen64)
	for _, part := range []string{string(rt), string(owner), extra} {
		buf = binary.AppendUvarint(buf, uint64(len(part)))
		buf = append(buf, part...)
	}
	return uuid.NewSHA1(keyNamespace, buf)
}

// ProfileKey is the key of the owner's profile.
func ProfileKey(owner shared.Owner) uuid.UUID {
	return RecordKey(RecordProfile, owner, "")
}

// QuizAttemptKey is the key of the owner's attempt at quizID.
func QuizAttemptKey(owner shared.Owner, quizID string) uuid.UUID {
	return RecordKey(RecordQuizAttempt, owner, quizID)
}

// AchievementKey is the key of the owner's grant of achievementID.
func AchievementKey(owner shared.Owner, achievementID string) uuid.UUID {
	return RecordKey(RecordAchievement, owner, achievementID)
}
