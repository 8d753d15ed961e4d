package backpack

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/karloscodes/backpack/auth"
)

// JobContext provides job-scoped access to application dependencies.
type JobContext struct {
	context.Context
	Logger Logger
	DB     *gorm.DB
}

// Processor handles one batch of background work.
type Processor interface {
	ProcessBatch(ctx *JobContext) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *JobContext) error

// ProcessBatch calls f.
func (f ProcessorFunc) ProcessBatch(ctx *JobContext) error { return f(ctx) }

// ResetPruner deletes expired password reset tokens.
type ResetPruner struct {
	Auth *auth.Manager
}

// ProcessBatch prunes every broker's table.
func (p ResetPruner) ProcessBatch(ctx *JobContext) error {
	n, err := p.Auth.PruneResets(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		ctx.Logger.Info("pruned expired password resets", "count", n)
	}
	return nil
}

// JobDispatcher runs processors periodically in a background loop.
type JobDispatcher struct {
	logger     Logger
	dbManager  DBManager
	processors []Processor
	interval   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewJobDispatcher creates a background job dispatcher.
func NewJobDispatcher(logger Logger, dbManager DBManager, interval time.Duration, processors ...Processor) *JobDispatcher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &JobDispatcher{
		logger:     logger,
		dbManager:  dbManager,
		processors: processors,
		interval:   interval,
	}
}

// Start begins the background loop. A second Start is a no-op.
func (d *JobDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop cancels the running batch and waits for the loop to exit.
func (d *JobDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *JobDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	d.logger.Info("jobs dispatcher started", "processors", len(d.processors), "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			d.RunOnce(ctx)
		case <-ctx.Done():
			d.logger.Info("jobs dispatcher stopped")
			return
		}
	}
}

// RunOnce runs every processor once. Failures are logged and do not stop
// the remaining processors.
func (d *JobDispatcher) RunOnce(ctx context.Context) {
	db := d.dbManager.GetConnection()
	if db == nil {
		d.logger.Error("jobs skipped: no database connection")
		return
	}

	jc := &JobContext{
		Context: ctx,
		Logger:  d.logger,
		DB:      db.WithContext(ctx),
	}

	for _, processor := range d.processors {
		if ctx.Err() != nil {
			return
		}
		if err := processor.ProcessBatch(jc); err != nil {
			d.logger.Error("processor failed", "error", err)
		}
	}
}
