package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Country string   `json:"country"`
	Value   *float64 `json:"value"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewClient(context.Background(), mr.Host(), mustPort(t, mr), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}

func TestSetGet(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	v := 12.5
	require.NoError(t, c.Set(ctx, "kpis", "abc", payload{Country: "Brazil", Value: &v}, time.Hour))
	assert.True(t, mr.Exists("forest:kpis:abc"))

	var got payload
	hit, err := c.Get(ctx, "kpis", "abc", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Brazil", got.Country)
	require.NotNil(t, got.Value)
	assert.Equal(t, 12.5, *got.Value)
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestClient(t)

	var got payload
	hit, err := c.Get(context.Background(), "kpis", "missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSet_Expires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "timeseries", "k", payload{Country: "Peru"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	var got payload
	hit, err := c.Get(ctx, "timeseries", "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGet_BackendDown(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Close()

	var got payload
	_, err := c.Get(context.Background(), "kpis", "abc", &got)
	assert.Error(t, err)
}

func TestInvalidate(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "kpis", "a", payload{}, time.Hour))
	require.NoError(t, c.Set(ctx, "kpis", "b", payload{}, time.Hour))
	require.NoError(t, c.Set(ctx, "timeseries", "a", payload{}, time.Hour))
	require.NoError(t, c.Set(ctx, "forest_loss", "a", payload{}, time.Hour))

	deleted, err := c.Invalidate(ctx, "kpis", "timeseries")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.False(t, mr.Exists("forest:kpis:a"))
	assert.True(t, mr.Exists("forest:forest_loss:a"))
}
