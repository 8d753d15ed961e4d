package backpack

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/backpack/auth"
)

type countingProcessor struct {
	calls atomic.Int32
	err   error
}

func (p *countingProcessor) ProcessBatch(*JobContext) error {
	p.calls.Add(1)
	return p.err
}

func TestJobDispatcher_StartStop(t *testing.T) {
	processor := &countingProcessor{}
	d := NewJobDispatcher(discardLogger(), newMemDB(t), 20*time.Millisecond, processor)

	d.Start()
	d.Start()
	require.Eventually(t, func() bool { return processor.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	d.Stop()
	d.Stop()

	after := processor.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, processor.calls.Load(), "no batches after Stop")
}

func TestJobDispatcher_FailuresDoNotStopOthers(t *testing.T) {
	failing := &countingProcessor{err: errors.New("boom")}
	ok := &countingProcessor{}
	d := NewJobDispatcher(discardLogger(), newMemDB(t), time.Hour, failing, ok)

	d.RunOnce(context.Background())

	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, int32(1), ok.calls.Load())
}

func TestJobDispatcher_CancelledContextSkipsWork(t *testing.T) {
	p := &countingProcessor{}
	d := NewJobDispatcher(discardLogger(), newMemDB(t), time.Hour, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.RunOnce(ctx)
	assert.Zero(t, p.calls.Load())
}

func TestResetPruner(t *testing.T) {
	f := newFixture(t)
	db := f.db.GetConnection()

	require.NoError(t, db.Create(&auth.PasswordReset{Email: "old@example.com", Token: "x", CreatedAt: time.Now().Add(-2 * time.Hour)}).Error)
	require.NoError(t, db.Create(&auth.PasswordReset{Email: "new@example.com", Token: "y", CreatedAt: time.Now()}).Error)

	d := NewJobDispatcher(discardLogger(), f.db, time.Hour, ResetPruner{Auth: f.provider.Auth()})
	d.RunOnce(context.Background())

	var emails []string
	require.NoError(t, db.Model(&auth.PasswordReset{}).Pluck("email", &emails).Error)
	assert.Equal(t, []string{"new@example.com"}, emails)
}

func TestProcessorFunc(t *testing.T) {
	called := false
	var p Processor = ProcessorFunc(func(*JobContext) error { called = true; return nil })
	require.NoError(t, p.ProcessBatch(&JobContext{Context: context.Background()}))
	assert.True(t, called)
}
