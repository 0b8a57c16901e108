package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plaenen/shopcore/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeService struct {
	name     string
	journal  *journal
	startErr error
	healthy  error
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.journal.add("start " + s.name)
	return nil
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.journal.add("stop " + s.name)
	return nil
}

func (s *fakeService) HealthCheck(ctx context.Context) error { return s.healthy }

func TestRunner(t *testing.T) {
	t.Run("StartsInOrderStopsInReverse", func(t *testing.T) {
		j := &journal{}
		r := runner.New([]runner.Service{
			&fakeService{name: "nats", journal: j},
			&fakeService{name: "janitor", journal: j},
		}, runner.WithShutdownTimeout(time.Second))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		require.Eventually(t, func() bool { return len(j.list()) == 2 }, time.Second, 5*time.Millisecond)
		cancel()

		require.NoError(t, <-done)
		assert.Equal(t, []string{"start nats", "start janitor", "stop janitor", "stop nats"}, j.list())
	})

	t.Run("StartFailureStopsStarted", func(t *testing.T) {
		j := &journal{}
		boom := errors.New("port in use")
		r := runner.New([]runner.Service{
			&fakeService{name: "nats", journal: j},
			&fakeService{name: "janitor", journal: j, startErr: boom},
		})

		err := r.Run(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"start nats", "stop nats"}, j.list())
	})

	t.Run("HealthCheck", func(t *testing.T) {
		sick := errors.New("not connected")
		r := runner.New([]runner.Service{&fakeService{name: "nats", healthy: sick}})
		assert.ErrorIs(t, r.HealthCheck(context.Background()), sick)
	})
}
