package output

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
)

// QueueProgress displays a live task-completion bar while a pool drains
// its queue, the same polling-and-redraw idiom the original writer used
// for upload progress, retargeted from bytes transferred to tasks
// completed.
type QueueProgress struct {
	bar *progressbar.ProgressBar
}

// NewQueueProgress builds a progress bar tracking total submitted tasks.
func NewQueueProgress(total int64) *QueueProgress {
	return &QueueProgress{
		bar: progressbar.NewOptions64(
			total,
			progressbar.OptionSetDescription("draining queue"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Println() }),
		),
	}
}

// Set updates the bar to reflect completed out of total tasks.
func (p *QueueProgress) Set(completed int64) error {
	return p.bar.Set64(completed)
}

// Finish marks the bar as complete.
func (p *QueueProgress) Finish() error {
	return p.bar.Finish()
}
