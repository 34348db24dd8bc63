package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
	err      error
	closed   bool
}

func (f *fakeClient) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message.([]byte))
	return redis.NewIntResult(2, nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestPublisherSendsJSON(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	pub, err := New(client, "jobs")
	require.NoError(t, err)

	id, err := pub.Publish(context.Background(), "", map[string]any{"job_id": "7"})
	require.NoError(t, err)
	require.Equal(t, "jobs-1/2", id)
	id, err = pub.Publish(context.Background(), "jobs-eu", "x")
	require.NoError(t, err)
	require.Equal(t, "jobs-eu-2/2", id)

	require.Equal(t, []string{"jobs", "jobs-eu"}, client.channels)
	require.JSONEq(t, `{"job_id":"7"}`, string(client.payloads[0]))
	require.NoError(t, pub.Close())
	require.True(t, client.closed)
}

func TestPublisherErrors(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "jobs")
	require.Error(t, err)

	pub, err := New(&fakeClient{err: errors.New("conn refused")}, "")
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "channel is required")
	_, err = pub.Publish(context.Background(), "jobs", "x")
	require.ErrorContains(t, err, "conn refused")

	_, err = NewClient(context.Background(), "not a url")
	require.Error(t, err)
}
