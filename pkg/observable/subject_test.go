package observable

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(v int) func(int) (int, bool, error) {
	return func(int) (int, bool, error) { return v, true, nil }
}

func TestSubject_ReplaysCurrentValueOnSubscribe(t *testing.T) {
	s := NewSubject(1)
	require.NoError(t, s.Update(set(2)))

	var got []int
	cancel := s.Subscribe(func(v int) { got = append(got, v) })
	defer cancel()

	assert.Equal(t, []int{2}, got)
}

func TestSubject_DeliversEveryUpdateInOrder(t *testing.T) {
	s := NewSubject(0)
	var first, second []int
	c1 := s.Subscribe(func(v int) { first = append(first, v) })
	c2 := s.Subscribe(func(v int) { second = append(second, v) })
	defer c1()
	defer c2()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Update(set(i)))
	}

	assert.Equal(t, []int{0, 1, 2, 3}, first)
	assert.Equal(t, []int{0, 1, 2, 3}, second)
}

func TestSubject_ErrorAndNoChangeAreSilent(t *testing.T) {
	s := NewSubject("a")
	calls := 0
	cancel := s.Subscribe(func(string) { calls++ })
	defer cancel()

	boom := errors.New("boom")
	err := s.Update(func(string) (string, bool, error) { return "b", true, boom })
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.Update(func(cur string) (string, bool, error) { return cur, false, nil }))

	assert.Equal(t, "a", s.Value())
	assert.Equal(t, 1, calls)
}

func TestSubject_CancelStopsDelivery(t *testing.T) {
	s := NewSubject(0)
	var got []int
	cancel := s.Subscribe(func(v int) { got = append(got, v) })
	require.NoError(t, s.Update(set(1)))

	cancel()
	cancel()
	require.NoError(t, s.Update(set(2)))

	assert.Equal(t, []int{0, 1}, got)
	assert.Equal(t, 0, s.Len())
}

func TestSubject_CancelFromInsideObserver(t *testing.T) {
	s := NewSubject(0)
	var got []int
	var cancel func()
	cancel = s.Subscribe(func(v int) {
		got = append(got, v)
		if v == 1 {
			cancel()
		}
	})
	require.NoError(t, s.Update(set(1)))
	require.NoError(t, s.Update(set(2)))

	assert.Equal(t, []int{0, 1}, got)
}

func TestSubject_CancelDuringDeliveryDoesNotWait(t *testing.T) {
	s := NewSubject(0)
	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var got []int
	cancel := s.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
		if v == 1 {
			close(entered)
			<-release
		}
	})

	updated := make(chan error, 1)
	go func() { updated <- s.Update(set(1)) }()
	<-entered

	// cancel returns while the delivery of 1 is still running
	cancel()
	close(release)
	require.NoError(t, <-updated)
	require.NoError(t, s.Update(set(2)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1}, got)
}

func TestSubject_ValueFromObserverSeesNewValue(t *testing.T) {
	s := NewSubject(0)
	var seen int
	cancel := s.Subscribe(func(int) { seen = s.Value() })
	defer cancel()

	require.NoError(t, s.Update(set(5)))
	assert.Equal(t, 5, seen)
}

func TestSubject_ConcurrentUpdatesAreSerialized(t *testing.T) {
	s := NewSubject(0)
	var mu sync.Mutex
	var got []int
	cancel := s.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	defer cancel()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(func(cur int) (int, bool, error) { return cur + 1, true, nil })
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Value())
	require.Len(t, got, 51)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}
