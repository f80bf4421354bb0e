package models

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheLoadsExactlyOnce(t *testing.T) {
	c := NewCache()
	var calls int32
	start := make(chan struct{})

	const workers = 20
	results := make([]*Handle, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			h, err := c.GetOrLoadHandle(context.Background(), "tb_5d_tech", func(context.Context) (*Handle, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return &Handle{TaskID: "tb_5d_tech"}, nil
			})
			require.NoError(t, err)
			results[i] = h
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, h := range results {
		assert.Same(t, results[0], h)
	}

	handles, explainers := c.Sizes()
	assert.Equal(t, 1, handles)
	assert.Equal(t, 0, explainers)
}

func TestCacheFailureIsNotCached(t *testing.T) {
	c := NewCache()
	calls := 0
	down := errors.New("store down")

	load := func(fail bool) (*Handle, error) {
		return c.GetOrLoadHandle(context.Background(), "dist_5d_tech", func(context.Context) (*Handle, error) {
			calls++
			if fail {
				return nil, down
			}
			return &Handle{TaskID: "dist_5d_tech"}, nil
		})
	}

	_, err := load(true)
	require.ErrorIs(t, err, down)
	assert.Equal(t, 1, calls)

	h, err := load(false)
	require.NoError(t, err)
	assert.Equal(t, "dist_5d_tech", h.TaskID)
	assert.Equal(t, 2, calls)

	// Success sticks: no further loader invocations.
	again, err := load(true)
	require.NoError(t, err)
	assert.Same(t, h, again)
	assert.Equal(t, 2, calls)
}

func TestCacheHandleAndExplainerKeysAreIndependent(t *testing.T) {
	c := NewCache()

	h, err := c.GetOrLoadHandle(context.Background(), "tb_5d_tech", func(context.Context) (*Handle, error) {
		return &Handle{TaskID: "tb_5d_tech"}, nil
	})
	require.NoError(t, err)

	var built int
	exp, err := c.GetOrLoadExplainer(context.Background(), "tb_5d_tech", func(context.Context) (Explainer, error) {
		built++
		return NewExplainer(twoTargetKernel())
	})
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, 1, built)

	got, ok := c.PeekHandle("tb_5d_tech")
	require.True(t, ok)
	assert.Same(t, h, got)

	_, ok = c.PeekHandle("missing")
	assert.False(t, ok)

	handles, explainers := c.Sizes()
	assert.Equal(t, 1, handles)
	assert.Equal(t, 1, explainers)
}
