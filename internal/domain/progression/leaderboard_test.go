package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankProfiles(t *testing.T) {
	entries := RankProfiles([]*Profile{
		{Owner: "carol", DisplayName: "Carol", XP: 100, Level: 2},
		nil,
		{Owner: "bob", DisplayName: "Bob", XP: 300, Level: 4},
		{Owner: "alice", DisplayName: "Alice", XP: 100, Level: 2},
	})

	require.Len(t, entries, 3)
	assert.Equal(t, LeaderboardEntry{Owner: "bob", DisplayName: "Bob", XP: 300, Level: 4, Rank: 1}, entries[0])
	assert.Equal(t, "alice", entries[1].Owner)
	assert.Equal(t, int64(2), entries[1].Rank)
	assert.Equal(t, "carol", entries[2].Owner)
	assert.Equal(t, int64(3), entries[2].Rank)
}

func TestRankProfiles_Empty(t *testing.T) {
	assert.Empty(t, RankProfiles(nil))
}
