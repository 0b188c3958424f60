package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := New(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func TestStartup_DependencyOrder(t *testing.T) {
	s := newTestStartup(1)
	var events []string
	record := func(event string) func(context.Context) error {
		return func(context.Context) error {
			events = append(events, event)
			return nil
		}
	}

	s.Add(Func("matching", []string{"database", "redis"}, record("start matching"), record("stop matching")))
	s.Add(Func("database", nil, record("start database"), record("stop database")))
	s.Add(Func("redis", nil, record("start redis"), record("stop redis")))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, []string{
		"start database", "start redis", "start matching",
		"stop matching", "stop redis", "stop database",
	}, events)
	assert.Equal(t, StatusStopped, s.Status("database"))
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	s := newTestStartup(3)
	calls := 0
	s.Add(Func("database", nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, nil))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
	assert.Equal(t, StatusStarted, s.Status("database"))
}

func TestStartup_GivesUp(t *testing.T) {
	s := newTestStartup(2)
	s.Add(Func("kafka", nil, func(context.Context) error { return errors.New("no brokers") }, nil))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "no brokers")
	assert.Equal(t, StatusFailed, s.Status("kafka"))
}

func TestStartup_UnknownDependency(t *testing.T) {
	s := newTestStartup(1)
	s.Add(Func("matching", []string{"vectors"}, nil, nil))

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, `unknown startup dependency "vectors"`)
}
