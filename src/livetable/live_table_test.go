package livetable

import (
	"sync"
	"testing"
	"time"

	"option-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertLastWriteWins(t *testing.T) {
	lt := NewLiveTable()

	lt.Upsert(models.MInstrumentSnapshot{Token: 1, Class: models.ClassOption, LastPrice: 100})
	lt.Upsert(models.MInstrumentSnapshot{Token: 1, Class: models.ClassOption, LastPrice: 101})

	snap, ok := lt.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 101.0, snap.LastPrice)
	assert.Equal(t, 1, lt.Len())
}

func TestSpotTableFollowsIndexTicks(t *testing.T) {
	lt := NewLiveTable()

	lt.Upsert(models.MInstrumentSnapshot{
		Token: 256265, Class: models.ClassSpotIndex, Underlying: "NIFTY", LastPrice: 20123.5,
	})

	px, ok := lt.Spot("NIFTY")
	require.True(t, ok)
	assert.Equal(t, 20123.5, px)

	// Option ticks never touch the spot table.
	lt.Upsert(models.MInstrumentSnapshot{
		Token: 1001, Class: models.ClassOption, Underlying: "NIFTY", LastPrice: 150,
	})
	px, _ = lt.Spot("NIFTY")
	assert.Equal(t, 20123.5, px)
}

func TestSnapshotCopyIsDetached(t *testing.T) {
	lt := NewLiveTable()
	lt.Upsert(models.MInstrumentSnapshot{Token: 1, LastPrice: 100})

	copied := lt.SnapshotCopy()
	lt.Upsert(models.MInstrumentSnapshot{Token: 1, LastPrice: 999})

	assert.Equal(t, 100.0, copied[1].LastPrice)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	lt := NewLiveTable()
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			lt.Upsert(models.MInstrumentSnapshot{
				Token: uint32(i % 10), LastPrice: float64(i), UpdatedAt: time.Now(),
			})
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = lt.SnapshotCopy()
					_ = lt.All()
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 10, lt.Len())
}
