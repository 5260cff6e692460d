package progress

import (
	"context"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mht-extract/stats"
)

// Bar manages a progress bar advancing once per archive part.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// startBar is replaced in tests.
var startBar = func(total int) (*pterm.ProgressbarPrinter, error) {
	return pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Extracting parts").
		Start()
}

// New creates a new progress bar if enabled is set and logLevel is "info".
// A bar that fails to start stays disabled.
func New(total int, logLevel string, enabled bool) *Bar {
	bar := &Bar{total: total}
	if !enabled || logLevel != "info" || total <= 0 {
		return bar
	}

	pb, err := startBar(total)
	if err != nil || pb == nil {
		return bar
	}
	bar.pb = pb
	bar.enabled = true

	pterm.Info.Printf("Total parts in archive: %d\n", total)
	return bar
}

// Enabled reports whether the bar renders anything.
func (b *Bar) Enabled() bool {
	return b != nil && b.enabled && b.pb != nil
}

// Update advances the progress bar for every part-level event.
func (b *Bar) Update(evt stats.Event) {
	if !b.Enabled() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeHTML, stats.EventTypeImage,
		stats.EventTypeSkipped, stats.EventTypeFiltered:
		b.pb.Increment()
		if evt.Part.Name != "" {
			b.pb.UpdateTitle("Extracting: " + truncate(evt.Part.Name, 40))
		}
	case stats.EventTypeWarning:
		b.pb.Increment()
		if evt.Err != nil {
			pterm.Warning.Printf("Part %d skipped: %v\n", evt.Part.Index, evt.Err)
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.Enabled() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	_, _ = b.pb.Stop()
	pterm.Success.Println("Extraction complete!")
}

// Subscriber creates a stats subscriber function that updates the progress bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// Reporter prints a final summary table once the event stream closes.
type Reporter struct {
	collector *stats.Collector
	started   time.Time
}

// NewReporter subscribes the bar and a summary printer when the bar is enabled.
func NewReporter(stream stats.EventStream, bar *Bar) *Reporter {
	reporter := &Reporter{
		collector: stats.NewCollector(),
		started:   time.Now(),
	}

	if bar.Enabled() {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

func (pr *Reporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)

	summary := pr.collector.Snapshot()
	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", time.Since(pr.started))
	pterm.Info.Printf("HTML documents: %d\n", summary.HTML)
	pterm.Info.Printf("Images: %d\n", summary.Images)
	pterm.Info.Printf("Skipped: %d\n", summary.Skipped)
	pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
	pterm.Info.Printf("Warnings: %d\n", summary.Warnings)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
