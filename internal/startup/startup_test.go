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

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartOrdersDependencies(t *testing.T) {
	var started, stopped []string
	dep := func(name string, requires ...string) *Func {
		return &Func{
			Name:     name,
			Requires: requires,
			StartFunc: func(context.Context) error {
				started = append(started, name)
				return nil
			},
			StopFunc: func(context.Context) error {
				stopped = append(stopped, name)
				return nil
			},
		}
	}

	s := NewStartup(silentLogger(), 1)
	s.AddDependency(dep("indices", "postgres", "crosswalk"))
	s.AddDependency(dep("crosswalk"))
	s.AddDependency(dep("postgres"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"postgres", "crosswalk", "indices"}, started)
	assert.Equal(t, StartupStatusStarted, s.Status("indices"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"indices", "crosswalk", "postgres"}, stopped)
	assert.Equal(t, StartupStatusStopped, s.Status("postgres"))
}

func TestStartRetriesWithBackoff(t *testing.T) {
	calls := 0
	s := NewStartup(silentLogger(), 3)
	s.SetBackoffUnit(time.Millisecond)
	s.AddDependency(&Func{Name: "flaky", StartFunc: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartGivesUp(t *testing.T) {
	boom := errors.New("boom")
	s := NewStartup(silentLogger(), 2)
	s.SetBackoffUnit(time.Millisecond)
	s.AddDependency(&Func{Name: "broken", StartFunc: func(context.Context) error { return boom }})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StartupStatusFailed, s.Status("broken"))
}

func TestStartDetectsCycles(t *testing.T) {
	s := NewStartup(silentLogger(), 1)
	s.AddDependency(&Func{Name: "a", Requires: []string{"b"}})
	s.AddDependency(&Func{Name: "b", Requires: []string{"a"}})

	assert.Error(t, s.Start(context.Background()))
}

func TestStartUnknownDependency(t *testing.T) {
	s := NewStartup(silentLogger(), 1)
	s.AddDependency(&Func{Name: "a", Requires: []string{"missing"}})

	assert.Error(t, s.Start(context.Background()))
}
