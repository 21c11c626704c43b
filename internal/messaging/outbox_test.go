package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabprogress/internal/config"
	"fabprogress/internal/storage/sqlstore"
)

type published struct {
	topic, key, eventType string
	payload               []byte
}

type fakePublisher struct {
	mu      sync.Mutex
	fail    map[string]bool
	written []published
}

func (p *fakePublisher) Publish(_ context.Context, topic, key, eventType string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail[key] {
		return errors.New("broker unavailable")
	}
	p.written = append(p.written, published{topic, key, eventType, payload})
	return nil
}

func newStore(t *testing.T) *sqlstore.Storage {
	t.Helper()

	st, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestDrainPublishesAndAcks(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueOutbox(ctx, "fab.events", "a-1", "step.advanced", []byte(`{"n":1}`)))
	require.NoError(t, st.EnqueueOutbox(ctx, "fab.events", "a-2", "ncr.opened", []byte(`{"n":2}`)))

	pub := &fakePublisher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewOutboxDrainer(log, st, pub, config.Kafka{BatchSize: 10})

	assert.Equal(t, 2, d.Drain(ctx))
	require.Len(t, pub.written, 2)
	assert.Equal(t, "a-1", pub.written[0].key)
	assert.Equal(t, "step.advanced", pub.written[0].eventType)
	assert.Equal(t, `{"n":2}`, string(pub.written[1].payload))

	assert.Equal(t, 0, d.Drain(ctx))
	pending, err := st.ListPendingOutbox(ctx, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainRetriesFailedMessages(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueOutbox(ctx, "fab.events", "a-1", "step.advanced", []byte(`{}`)))
	require.NoError(t, st.EnqueueOutbox(ctx, "fab.events", "a-2", "step.advanced", []byte(`{}`)))

	pub := &fakePublisher{fail: map[string]bool{"a-1": true}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewOutboxDrainer(log, st, pub, config.Kafka{MaxRetries: 2})

	assert.Equal(t, 1, d.Drain(ctx))

	pending, err := st.ListPendingOutbox(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a-1", pending[0].Key)
	assert.Equal(t, 1, pending[0].Retries)

	assert.Equal(t, 0, d.Drain(ctx))
	// the retry ceiling parks the message
	assert.Equal(t, 0, d.Drain(ctx))
	pending, err = st.ListPendingOutbox(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pub.fail = nil
	assert.Equal(t, 0, d.Drain(ctx))
}
