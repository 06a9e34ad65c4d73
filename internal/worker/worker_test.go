package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/logger"
	"storefront/internal/services/events"
	"storefront/internal/worker/processors"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type scriptedProcessor struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string][]error
}

func (p *scriptedProcessor) Process(_ context.Context, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls[msg.SiteID]
	p.calls[msg.SiteID] = n + 1
	if errs := p.errs[msg.SiteID]; n < len(errs) {
		return errs[n]
	}
	return nil
}

func (p *scriptedProcessor) count(siteID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[siteID]
}

func TestWorkerCommitsEveryMessage(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		{Offset: 1, Value: []byte(`{"site_id":"ok","event_type":"manifest_fetched"}`)},
		{Offset: 2, Value: []byte(`not json`)},
		{Offset: 3, Value: []byte(`{"site_id":"gone","event_type":"manifest_fetched"}`)},
		{Offset: 4, Value: []byte(`{"site_id":"flaky","event_type":"product_added"}`)},
	}}
	proc := &scriptedProcessor{
		calls: map[string]int{},
		errs: map[string][]error{
			"gone":  {processors.ErrRejected},
			"flaky": {errors.New("database is locked")},
		},
	}
	w := NewWithReader(reader, proc, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.offsets()) == 4 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3, 4}, reader.offsets())
	assert.Equal(t, 1, proc.count("ok"))
	assert.Equal(t, 1, proc.count("gone"))
	assert.Equal(t, 2, proc.count("flaky"))

	require.NoError(t, w.Stop())
	assert.True(t, reader.closed)
}
