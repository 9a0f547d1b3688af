package interfaces

import (
	"context"
	"option-observer/src/models"
	"sync"
)

// -----------------------------------------------------------------------------
// IFeedSource interface for receiving raw tick batches from a market feed.
// -----------------------------------------------------------------------------

type IFeedSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Start begins delivering tick batches.
	// ctx: controls the lifecycle (cancellation stops the source)
	// outputChan: channel to push decoded tick batches to
	// wg: WaitGroup to signal when the source has fully stopped
	Start(ctx context.Context, outputChan chan<- []models.MRawTick, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop terminates the source (manual stop; context cancellation also works)
	Stop() error

	// -----------------------------------------------------------------------------

	// UpdateTokens replaces the set of instrument tokens being subscribed.
	UpdateTokens(tokens []uint32) error
}
