package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"option-observer/src/logger"
	"option-observer/src/models"
)

// -----------------------------------------------------------------------------
// ReplaySource plays back recorded tick batches at a fixed interval. Used for
// offline runs and tests where no live feed is available.
// -----------------------------------------------------------------------------

type ReplaySource struct {
	Batches  [][]models.MRawTick
	Interval time.Duration
	Logger   *logger.Logger

	cancelFunc context.CancelFunc
	isRunning  atomic.Bool
	mu         sync.Mutex
}

// -----------------------------------------------------------------------------

func NewReplaySource(batches [][]models.MRawTick, interval time.Duration, log *logger.Logger) *ReplaySource {
	return &ReplaySource{
		Batches:  batches,
		Interval: interval,
		Logger:   log,
	}
}

// -----------------------------------------------------------------------------

func (r *ReplaySource) Name() string {
	return "ReplaySource"
}

// -----------------------------------------------------------------------------

func (r *ReplaySource) Start(parentCtx context.Context, outputChan chan<- []models.MRawTick, wg *sync.WaitGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning.Load() {
		return fmt.Errorf("feed %s is already running", r.Name())
	}

	ctx, cancel := context.WithCancel(parentCtx)
	r.cancelFunc = cancel
	r.isRunning.Store(true)

	wg.Add(1)
	go func() {
		defer wg.Done()

		for _, batch := range r.Batches {
			select {
			case <-ctx.Done():
				return
			case outputChan <- batch:
			}

			if r.Interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(r.Interval):
				}
			}
		}
		r.Logger.Info("Replay finished: %d batches delivered", len(r.Batches))
	}()

	r.Logger.Info("Started feed: %s (%d batches)", r.Name(), len(r.Batches))
	return nil
}

// -----------------------------------------------------------------------------

func (r *ReplaySource) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRunning.Load() {
		return fmt.Errorf("feed %s is not running", r.Name())
	}

	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	r.isRunning.Store(false)
	return nil
}

// -----------------------------------------------------------------------------

// UpdateTokens is a no-op: replay delivers whatever was recorded.
func (r *ReplaySource) UpdateTokens(tokens []uint32) error {
	return nil
}
