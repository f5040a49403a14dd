package mqtt

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailytracker/offline-agent/internal/conf"
	"github.com/dailytracker/offline-agent/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func TestNewSource_RequiresBroker(t *testing.T) {
	_, err := NewSource(conf.MQTTSettings{Topic: "daily-tracker/push"}, func([]byte) {}, testLogger())
	assert.Error(t, err)
}

func TestNewSource_Valid(t *testing.T) {
	s, err := NewSource(conf.MQTTSettings{
		Broker:   "tcp://localhost:1883",
		Topic:    "daily-tracker/push",
		ClientID: "offline-agent",
	}, func([]byte) {}, testLogger())
	require.NoError(t, err)
	assert.False(t, s.IsConnected())
}

func TestSource_ConnectTimeoutHonorsContext(t *testing.T) {
	s, err := NewSource(conf.MQTTSettings{
		// Reserved TEST-NET address, nothing listens there.
		Broker:         "tcp://192.0.2.1:1883",
		Topic:          "daily-tracker/push",
		ConnectTimeout: conf.Duration(10 * time.Second),
	}, func([]byte) {}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = s.Connect(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSource_TimeoutDefault(t *testing.T) {
	s := &Source{settings: conf.MQTTSettings{}}
	assert.Equal(t, defaultTimeout, s.timeout())

	s.settings.ConnectTimeout = conf.Duration(3 * time.Second)
	assert.Equal(t, 3*time.Second, s.timeout())
}
