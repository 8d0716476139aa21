package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushEvictsOldest(t *testing.T) {
	s := NewStore(3, 0)
	for i := 1; i <= 5; i++ {
		s.Update("a", func(r *Record) { r.Push(fmt.Sprintf("e%d", i)) })
	}
	assert.Equal(t, []string{"e3", "e4", "e5"}, s.Recent("a"))
	assert.Nil(t, s.Recent("missing"))
	assert.Equal(t, 1, s.Len())
}

func TestDefaults(t *testing.T) {
	s := NewStore(0, 0)
	assert.Equal(t, DefaultCapacity, s.capacity)
	assert.Equal(t, DefaultIdleTimeout, s.idleTimeout)
}

func TestConcurrentUpdatesSameSession(t *testing.T) {
	s := NewStore(1000, 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Update("shared", func(r *Record) { r.Push(fmt.Sprintf("e%d", i)) })
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Recent("shared"), 50)
}

func TestDifferentSessionsDoNotBlock(t *testing.T) {
	s := NewStore(0, 0)
	entered := make(chan struct{})
	release := make(chan struct{})
	go s.Update("slow", func(*Record) {
		close(entered)
		<-release
	})
	<-entered

	done := make(chan struct{})
	go func() {
		s.Update("fast", func(r *Record) { r.Push("x") })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("update on another session blocked")
	}
	close(release)
}

func TestEvictIdle(t *testing.T) {
	s := NewStore(0, time.Minute)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	s.Update("old", func(r *Record) { r.Push("e1") })
	clock = base.Add(50 * time.Second)
	s.Update("new", func(r *Record) { r.Push("e2") })

	removed := s.EvictIdle(base.Add(90 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Nil(t, s.Recent("old"))
	assert.Equal(t, []string{"e2"}, s.Recent("new"))
}

func TestEvictIdleSkipsRecordsInUse(t *testing.T) {
	s := NewStore(0, time.Minute)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Update("busy", func(r *Record) {
			close(entered)
			<-release
			r.Push("e1")
		})
	}()
	<-entered

	assert.Zero(t, s.EvictIdle(base.Add(time.Hour)))
	close(release)
	<-done
	assert.Equal(t, []string{"e1"}, s.Recent("busy"))

	assert.Equal(t, 1, s.EvictIdle(base.Add(time.Hour)))
	assert.Nil(t, s.Recent("busy"))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewStore(0, time.Nanosecond)
	s.Update("a", func(r *Record) { r.Push("e1") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
