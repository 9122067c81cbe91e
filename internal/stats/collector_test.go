package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()
	c.SetTotals(100, 1<<20)
	c.AddFilesProcessed(3)
	c.AddFilesStaged(2)
	c.AddFilesSplit(1)
	c.AddChunksCreated(2)
	c.AddFilesSkipped(1)
	c.AddFilesFailed(1)
	c.AddBytesProcessed(4096)
	c.AddCommitsMade(1)
	c.AddPushesMade(1)
	c.AddPushRetries(2)

	snap := c.Snapshot()
	assert.Equal(t, int64(100), snap.FilesTotal)
	assert.Equal(t, int64(1<<20), snap.BytesTotal)
	assert.Equal(t, int64(3), snap.FilesProcessed)
	assert.Equal(t, int64(2), snap.FilesStaged)
	assert.Equal(t, int64(1), snap.FilesSplit)
	assert.Equal(t, int64(2), snap.ChunksCreated)
	assert.Equal(t, int64(1), snap.FilesSkipped)
	assert.Equal(t, int64(1), snap.FilesFailed)
	assert.Equal(t, int64(4096), snap.BytesProcessed)
	assert.Equal(t, int64(1), snap.CommitsMade)
	assert.Equal(t, int64(1), snap.PushesMade)
	assert.Equal(t, int64(2), snap.PushRetries)
}

func TestCollector_ConcurrentWrites(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.AddFilesProcessed(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8000), c.Snapshot().FilesProcessed)
}

func TestSnapshot_String(t *testing.T) {
	s := Snapshot{FilesProcessed: 5, FilesFailed: 1}
	assert.Contains(t, s.String(), "processed=5")
	assert.Contains(t, s.String(), "failed=1")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "25.0 MiB", FormatBytes(25*1024*1024))
	assert.Equal(t, "2.5 GiB", FormatBytes(int64(2.5*1024*1024*1024)))
}
