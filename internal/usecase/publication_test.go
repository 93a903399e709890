package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherFailedDeliveryIsRetried(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.seed("ready", true)
	deliverer := &fakeDeliverer{err: errors.New("telegram down")}
	pub := NewPublisher(PublisherDeps{Store: store, Deliverer: deliverer, BatchSize: 1, Pause: noPause})

	posted, err := pub.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, posted)

	article, _, _ := store.Get(context.Background(), id)
	assert.False(t, article.IsPosted)

	queue, _ := store.ListApprovedUnposted(context.Background(), 10)
	require.Len(t, queue, 1, "failed article is polled again")

	deliverer.err = nil
	posted, err = pub.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, posted)
	assert.Equal(t, []string{"ready"}, deliverer.sent)

	article, _, _ = store.Get(context.Background(), id)
	assert.True(t, article.IsPosted)
	assert.NotNil(t, article.PostedAt)
}

func TestPublisherBatchOrderAndPacing(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.seed("A", true)
	store.seed("pending", false)
	store.seed("B", true)
	store.seed("C", true)

	var pauses []time.Duration
	deliverer := &fakeDeliverer{}
	pub := NewPublisher(PublisherDeps{
		Store: store, Deliverer: deliverer, BatchSize: 2, SendPause: 5 * time.Second,
		Pause: func(_ context.Context, d time.Duration) error {
			pauses = append(pauses, d)
			return nil
		},
	})

	posted, err := pub.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, posted)
	assert.Equal(t, []string{"A", "B"}, deliverer.sent)
	assert.Equal(t, []time.Duration{5 * time.Second}, pauses)

	_, err = pub.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, deliverer.sent)
}

func TestPublisherPublishOnDemand(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	approved := store.seed("go", true)
	pending := store.seed("wait", false)
	deliverer := &fakeDeliverer{}
	pub := NewPublisher(PublisherDeps{Store: store, Deliverer: deliverer, Pause: noPause})
	ctx := context.Background()

	res, _, err := pub.Publish(ctx, approved)
	require.NoError(t, err)
	assert.Equal(t, PublishDelivered, res)

	res, _, err = pub.Publish(ctx, approved)
	require.NoError(t, err)
	assert.Equal(t, PublishAlreadyPosted, res)
	assert.Len(t, deliverer.sent, 1, "second publish must not deliver again")

	res, _, err = pub.Publish(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, PublishNotApproved, res)

	res, _, err = pub.Publish(ctx, 999)
	require.NoError(t, err)
	assert.Equal(t, PublishNotFound, res)

	deliverer.err = errors.New("boom")
	other := store.seed("later", true)
	_, _, err = pub.Publish(ctx, other)
	assert.Error(t, err)
	article, _, _ := store.Get(ctx, other)
	assert.False(t, article.IsPosted)
}
