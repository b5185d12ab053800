package binanceclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newReconnectClient(stable time.Duration) *Client {
	return &Client{
		logger:               &mockLogger{},
		reconnectDelay:       time.Millisecond,
		maxReconnectDelay:    2 * time.Millisecond,
		maxReconnectAttempts: 3,
		stableConnection:     stable,
	}
}

// runServe runs serveWithReconnect and fails the test if it does not return.
func runServe(t *testing.T, ctx context.Context, c *Client, serve serveFunc) {
	t.Helper()
	finished := make(chan struct{})
	go func() {
		c.serveWithReconnect(ctx, "test", "BTCUSDT", serve)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("serveWithReconnect did not return")
	}
}

func closedConnection() (chan struct{}, chan struct{}, error) {
	done := make(chan struct{})
	close(done)
	return done, make(chan struct{}), nil
}

func TestServeWithReconnect_GivesUpOnConnectErrors(t *testing.T) {
	c := newReconnectClient(time.Hour)
	var calls atomic.Int32

	runServe(t, context.Background(), c, func() (chan struct{}, chan struct{}, error) {
		calls.Add(1)
		return nil, nil, errors.New("dial failed")
	})

	assert.Equal(t, int32(3), calls.Load())
}

func TestServeWithReconnect_ShortLivedConnectionsExhaustBudget(t *testing.T) {
	c := newReconnectClient(time.Hour)
	var calls atomic.Int32

	runServe(t, context.Background(), c, func() (chan struct{}, chan struct{}, error) {
		calls.Add(1)
		return closedConnection()
	})

	assert.Equal(t, int32(3), calls.Load())
}

func TestServeWithReconnect_StableConnectionRestoresBudget(t *testing.T) {
	c := newReconnectClient(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32

	runServe(t, ctx, c, func() (chan struct{}, chan struct{}, error) {
		if calls.Add(1) == 6 {
			cancel()
		}
		return closedConnection()
	})

	assert.Equal(t, int32(6), calls.Load())
}
