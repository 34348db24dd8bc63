package pubsub_test

import (
	"context"
	"testing"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/realtime-job-scraper/internal/publisher/pubsub"
)

func newFakeClient(t *testing.T) (*gpubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client, err := gpubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "jobs")
	require.NoError(t, err)

	pub, err := pubsub.New(client, "jobs")
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "", map[string]string{"job_id": "42"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"job_id":"42"}`, string(msgs[0].Data))
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
	require.NoError(t, pub.Close())
}

func TestPublisherUnknownTopicFails(t *testing.T) {
	t.Parallel()

	client, _ := newFakeClient(t)
	pub, err := pubsub.New(client, "")
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "missing", "x")
	require.Error(t, err)
	require.NoError(t, pub.Close())
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := pubsub.New(nil, "jobs")
	require.Error(t, err)
}
