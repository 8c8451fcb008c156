package ratelimit

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherdex.com/pkg/xerr"
	"golang.org/x/time/rate"
)

func TestStore_AllowPerKey(t *testing.T) {
	s := NewStore(rate.Every(time.Hour), 2, time.Minute)
	assert.True(t, s.Allow("a"))
	assert.True(t, s.Allow("a"))
	assert.False(t, s.Allow("a"))
	// 不同 key 互不影响
	assert.True(t, s.Allow("b"))
	assert.Equal(t, 2, s.Len())

	s.cleanup(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, s.Len())
}

func TestManager_BusinessErrorsDoNotTrip(t *testing.T) {
	m := NewManager("test", Rule{TripConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	for i := 0; i < 5; i++ {
		err := m.Do("ledger", xerr.ErrLedgerUnavailable, func() error { return xerr.ErrInsufficientFunds })
		require.ErrorIs(t, err, xerr.ErrInsufficientFunds)
	}
	assert.Equal(t, gobreaker.StateClosed, m.Get("ledger").State())
}

func TestManager_InfraErrorsTrip(t *testing.T) {
	m := NewManager("test", Rule{TripConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	boom := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		err := m.Do("ledger", xerr.ErrLedgerUnavailable, func() error { return fmt.Errorf("apply: %w", boom) })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, m.Get("ledger").State())

	called := false
	err := m.Do("ledger", xerr.ErrLedgerUnavailable, func() error { called = true; return nil })
	require.ErrorIs(t, err, xerr.ErrLedgerUnavailable)
	assert.False(t, called)

	// 其它资源独立
	assert.Equal(t, gobreaker.StateClosed, m.Get("other").State())
}
