package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("1.2.3")
	status := c.Check(context.Background())
	assert.True(t, status.Ready)
	assert.Equal(t, StateUp, status.State)
	assert.Equal(t, "1.2.3", status.Version)

	c.AddCheck("ledger", NewPingCheck(pinger{}))
	c.AddOptionalCheck("redis", NewPingCheck(pinger{err: errors.New("connection refused")}))
	status = c.Check(context.Background())
	assert.Equal(t, StateDegraded, status.State)
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready, "optional probe does not fail readiness")
	assert.True(t, status.Checks["ledger"].Healthy)
	assert.False(t, status.Checks["redis"].Required)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
	assert.Equal(t, "failing: redis", status.Message)

	c.AddCheck("ledger", NewPingCheck(pinger{err: errors.New("disk I/O error")}))
	status = c.Check(context.Background())
	assert.Equal(t, StateDown, status.State)
	assert.False(t, status.Ready)
	assert.Equal(t, "failing: ledger, redis", status.Message)

	c.RemoveCheck("ledger")
	c.RemoveCheck("redis")
	assert.Equal(t, StateUp, c.Check(context.Background()).State)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Checks["slow"].Healthy)
	assert.Equal(t, "timed out after 10ms", status.Checks["slow"].Message)
	assert.False(t, status.Ready)
}
