package process

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipping-tool/src/messages"
	"snipping-tool/src/router"
)

func request(t *testing.T, r *router.Router, to string, msg messages.Message) messages.Result {
	t.Helper()
	res, err := r.Request(context.Background(), messages.Envelope{From: "test", To: to, Message: msg})
	require.NoError(t, err)
	return res
}

func TestActorHandlesOneMessageAtATime(t *testing.T) {
	var inFlight, overlapped int32
	h := HandlerFunc(func(ctx context.Context, env messages.Envelope) messages.Result {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return messages.Ok()
	})

	m := NewManager()
	defer m.StopAll()
	require.NoError(t, m.Register(NewActor("worker", 8, h)))
	require.NoError(t, m.Start("worker"))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.GetRouter().Request(context.Background(), messages.Envelope{From: "test", To: "worker", Message: messages.GetPendingCapture{}})
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlapped))
}

func TestPanicBecomesFailure(t *testing.T) {
	h := HandlerFunc(func(ctx context.Context, env messages.Envelope) messages.Result {
		panic("boom")
	})
	m := NewManager()
	defer m.StopAll()
	require.NoError(t, m.Register(NewActor("fragile", 1, h)))
	require.NoError(t, m.Start("fragile"))

	res := request(t, m.GetRouter(), "fragile", messages.WriteFile{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")

	// The loop keeps serving after a panic.
	res = request(t, m.GetRouter(), "fragile", messages.WriteFile{})
	assert.False(t, res.Success)
}

func TestEnsureRunningStartsOnce(t *testing.T) {
	var handled int32
	h := HandlerFunc(func(ctx context.Context, env messages.Envelope) messages.Result {
		atomic.AddInt32(&handled, 1)
		return messages.Ok()
	})
	m := NewManager()
	defer m.StopAll()
	require.NoError(t, m.Register(NewActor(messages.ContextAgent, 1, h)))

	assert.Equal(t, StateStopped, m.GetStatus()[messages.ContextAgent])
	assert.False(t, m.GetRouter().IsRegistered(messages.ContextAgent))

	require.NoError(t, m.EnsureRunning(messages.ContextAgent))
	require.NoError(t, m.EnsureRunning(messages.ContextAgent))
	assert.Equal(t, StateRunning, m.GetStatus()[messages.ContextAgent])

	request(t, m.GetRouter(), messages.ContextAgent, messages.WriteFile{})
	assert.EqualValues(t, 1, atomic.LoadInt32(&handled))

	assert.Error(t, m.EnsureRunning("nobody"))
	assert.Error(t, m.Register(NewActor(messages.ContextAgent, 1, h)))
}

func TestDieNowStopsActor(t *testing.T) {
	a := NewActor("short", 1, HandlerFunc(func(ctx context.Context, env messages.Envelope) messages.Result {
		return messages.Ok()
	}))
	r := router.NewRouter()
	defer r.Shutdown()
	require.NoError(t, a.Start(context.Background(), r))

	require.NoError(t, r.Send(context.Background(), messages.Envelope{From: "test", To: "short", Message: messages.DIENOW{}}))
	require.Eventually(t, func() bool { return !a.IsRunning() && !r.IsRegistered("short") }, time.Second, 5*time.Millisecond)
	require.NoError(t, a.Stop())
}

func TestStoppedContextFailsQueuedRequests(t *testing.T) {
	inbox := make(chan messages.Envelope, 2)
	reply := make(chan messages.Result, 1)
	inbox <- messages.Envelope{Message: messages.GetPendingCapture{}, Reply: reply}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Serve(ctx, "closed", inbox, HandlerFunc(func(ctx context.Context, env messages.Envelope) messages.Result {
		return messages.Ok()
	}))

	res := <-reply
	assert.False(t, res.Success)
	assert.Equal(t, ErrContextStopped.Error(), res.Error)
}

func TestStopAll(t *testing.T) {
	m := NewManager()
	ok := HandlerFunc(func(ctx context.Context, env messages.Envelope) messages.Result { return messages.Ok() })
	a := NewActor("one", 1, ok)
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Start("one"))
	require.True(t, a.IsRunning())

	m.StopAll()
	assert.False(t, a.IsRunning())
	assert.False(t, m.GetRouter().IsRegistered("one"))
	assert.Equal(t, StateStopped, m.GetStatus()["one"])

	_, err := m.GetRouter().Request(context.Background(), messages.Envelope{To: "one", Message: messages.GetPendingCapture{}})
	assert.True(t, err != nil && !errors.Is(err, context.Canceled))
}
