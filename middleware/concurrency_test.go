package middleware

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	debugCalls int32
	infoCalls  int32
	warnCalls  int32
	errorCalls int32
}

func (m *mockLogger) Debug(msg string, keysAndValues ...any) { atomic.AddInt32(&m.debugCalls, 1) }
func (m *mockLogger) Info(msg string, keysAndValues ...any)  { atomic.AddInt32(&m.infoCalls, 1) }
func (m *mockLogger) Warn(msg string, keysAndValues ...any)  { atomic.AddInt32(&m.warnCalls, 1) }
func (m *mockLogger) Error(msg string, keysAndValues ...any) { atomic.AddInt32(&m.errorCalls, 1) }

func TestNewConcurrencyLimiter(t *testing.T) {
	limiter := NewConcurrencyLimiter(10, 1, 5*time.Second, &mockLogger{})
	require.NotNil(t, limiter)
	assert.Equal(t, 5*time.Second, limiter.timeout)
}

func TestConcurrencyLimiter_Read(t *testing.T) {
	logger := &mockLogger{}
	limiter := NewConcurrencyLimiter(2, 1, time.Second, logger)
	ctx := context.Background()

	require.NoError(t, limiter.AcquireRead(ctx))
	require.NoError(t, limiter.AcquireRead(ctx))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := limiter.AcquireRead(short)
	require.ErrorIs(t, err, ErrLimiterBusy)
	assert.Equal(t, int32(1), atomic.LoadInt32(&logger.warnCalls))

	limiter.ReleaseRead()
	require.NoError(t, limiter.AcquireRead(ctx))

	limiter.ReleaseRead()
	limiter.ReleaseRead()
}

func TestConcurrencyLimiter_Write(t *testing.T) {
	limiter := NewConcurrencyLimiter(10, 1, 50*time.Millisecond, &mockLogger{})
	ctx := context.Background()

	require.NoError(t, limiter.AcquireWrite(ctx))
	require.ErrorIs(t, limiter.AcquireWrite(ctx), ErrLimiterBusy, "timeout applies without a deadline on ctx")

	limiter.ReleaseWrite()
	require.NoError(t, limiter.Write(ctx, func() error { return nil }))
	require.NoError(t, limiter.AcquireWrite(ctx), "Write releases its slot")
	limiter.ReleaseWrite()
}

func TestConcurrencyLimiter_ConcurrentWritersSerialize(t *testing.T) {
	limiter := NewConcurrencyLimiter(5, 1, time.Second, &mockLogger{})

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := limiter.Write(context.Background(), func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
}

func TestConcurrencyLimiter_ContextCancellation(t *testing.T) {
	limiter := NewConcurrencyLimiter(1, 1, time.Second, nil)
	require.NoError(t, limiter.AcquireWrite(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, limiter.AcquireWrite(cancelled))

	limiter.ReleaseWrite()
}

func TestWriteConcurrencyLimitMiddleware(t *testing.T) {
	limiter := NewConcurrencyLimiter(1, 1, 20*time.Millisecond, &mockLogger{})
	app := fiber.New()
	app.Use(WriteConcurrencyLimitMiddleware(limiter))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })

	resp, err := app.Test(httptest.NewRequest("POST", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	require.NoError(t, limiter.AcquireWrite(context.Background()))
	defer limiter.ReleaseWrite()

	resp, err = app.Test(httptest.NewRequest("POST", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "reads are not limited")
}
