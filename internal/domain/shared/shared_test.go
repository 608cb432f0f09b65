package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Kinds(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError("ledger", "SubmitQuiz", ErrServiceUnavailable, "write failed", cause)

	assert.Equal(t, "ledger.SubmitQuiz: write failed: disk full", err.Error())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotFound(err))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.ErrorIs(t, wrapped, ErrServiceUnavailable)
	assert.Equal(t, ErrServiceUnavailable, KindOf(wrapped))
	assert.Nil(t, KindOf(cause))
}

func TestDomainError_NestedKind(t *testing.T) {
	// a domain sentinel used as the kind of another error
	sentinel := NewDomainError("progression", "GradeQuiz", ErrValueOutOfRange, "score exceeds total")
	err := WrapError("command", "SubmitQuiz", sentinel, "rejected", nil)

	assert.ErrorIs(t, err, sentinel)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "command.SubmitQuiz: rejected", err.Error())
}

func TestIsHelpers(t *testing.T) {
	cases := []struct {
		kind  error
		check func(error) bool
	}{
		{ErrNotFound, IsNotFound},
		{ErrAlreadyExists, IsAlreadyExists},
		{ErrForbidden, IsForbidden},
		{ErrUnauthorized, IsUnauthorized},
		{ErrOverflow, IsOverflow},
		{ErrTooLong, IsValidation},
		{ErrEmptyValue, IsValidation},
		{ErrInvalidInput, IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.kind.Error(), func(t *testing.T) {
			assert.True(t, tc.check(NewDomainError("d", "op", tc.kind, "msg")))
		})
	}
	assert.False(t, IsValidation(ErrOverflow))
}

func TestNewOwner(t *testing.T) {
	o, err := NewOwner("  alice  ")
	require.NoError(t, err)
	assert.Equal(t, Owner("alice"), o)

	_, err = NewOwner("   ")
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = NewOwner(strings.Repeat("a", MaxOwnerLen+1))
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = NewOwner(strings.Repeat("a", MaxOwnerLen))
	assert.NoError(t, err)
}

func TestBoundedText(t *testing.T) {
	v, err := BoundedText("d", "op", "name", "Quiz Master", 16, ErrTooLong)
	require.NoError(t, err)
	assert.Equal(t, "Quiz Master", v)

	_, err = BoundedText("d", "op", "name", strings.Repeat("x", 17), 16, ErrTooLong)
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = BoundedText("d", "op", "name", "\xff\xfe", 16, ErrTooLong)
	assert.ErrorIs(t, err, ErrInvalidInput)

	for _, v := range []string{"", "   "} {
		got, err := BoundedText("d", "op", "name", v, 16, ErrTooLong)
		require.NoError(t, err)
		assert.Equal(t, v, got, "kept verbatim")
	}
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0)
	assert.Equal(t, 0, p.Offset())
	assert.Equal(t, DefaultPageSize, p.Limit())

	p = NewPagination(3, 500)
	assert.Equal(t, MaxPageSize, p.Limit())
	assert.Equal(t, 2*MaxPageSize, p.Offset())
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(time.Date(2026, 3, 1, 12, 0, 0, 999, time.UTC))
	assert.Zero(t, c.Now().Nanosecond())

	c.Advance(90 * time.Minute)
	assert.Equal(t, time.Date(2026, 3, 1, 13, 30, 0, 0, time.UTC), c.Now())
}

func TestNewEventEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := NewLevelUpEvent("alice", 2, 3, 230, at)
	ev.BaseEvent = ev.WithCorrelationID("req-1")

	env, err := NewEventEnvelope("evt-1", ev)
	require.NoError(t, err)
	assert.Equal(t, EventLevelUp, env.Type)
	assert.Equal(t, "alice", env.AggregateID)
	assert.Equal(t, "req-1", env.CorrelationID)
	assert.Equal(t, at, env.Timestamp)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.EqualValues(t, 3, payload["new_level"])
	assert.EqualValues(t, 230, payload["xp"])
}
