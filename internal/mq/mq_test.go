package mq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/apiserver/config"
)

func TestOpen(t *testing.T) {
	q, err := Open(context.Background(), config.MQConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.MQConfig{Backend: "rabbitmq"})
	assert.ErrorContains(t, err, "rabbitmq url is required")

	_, err = Open(context.Background(), config.MQConfig{Backend: "pubsub"})
	assert.ErrorContains(t, err, "pubsub project id is required")

	q, err = Open(context.Background(), config.MQConfig{Backend: "memory"})
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.NoError(t, q.Close())
}

func TestMemoryBackend_PublishSubscribe(t *testing.T) {
	q := New(NewMemoryBackend())
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := q.Publish(ctx, "events", []byte("hello"), map[string]string{AttrContentType: "text/plain"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got := make(chan Message, 1)
	go func() {
		_ = q.Subscribe(ctx, "events", func(_ context.Context, msg Message) error {
			got <- msg
			return nil
		})
	}()

	select {
	case msg := <-got:
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, "hello", string(msg.Data))
		assert.Equal(t, "text/plain", msg.Attributes[AttrContentType])
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestMemoryBackend_RedeliversOnHandlerError(t *testing.T) {
	q := New(NewMemoryBackend())
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := q.Publish(ctx, "events", []byte("retry me"), nil)
	require.NoError(t, err)

	var attempts atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = q.Subscribe(ctx, "events", func(context.Context, Message) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
		assert.Equal(t, int32(3), attempts.Load())
	case <-ctx.Done():
		t.Fatal("message not redelivered")
	}
}

func TestMemoryBackend_Closed(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.Publish(context.Background(), "events", nil, nil)
	assert.ErrorIs(t, err, ErrClosed)

	err = b.Subscribe(context.Background(), "events", func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBackend_SubscribeStopsOnCancel(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Subscribe(ctx, "events", func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
