package stats

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dhcgn/mht-extract/model"
)

type Stage string

const (
	StageScan  Stage = "scan"
	StageWrite Stage = "write"
)

type EventType string

const (
	EventTypeHTML     EventType = "html"
	EventTypeImage    EventType = "image"
	EventTypeSkipped  EventType = "skipped"
	EventTypeFiltered EventType = "filtered"
	EventTypeWarning  EventType = "warning"
	EventTypeError    EventType = "error"
)

type Event struct {
	Stage  Stage
	Type   EventType
	Part   model.Part
	Err    error
	Detail string
}

type Summary struct {
	Parts     int
	HTML      int
	Images    int
	Skipped   int
	Filtered  int
	Warnings  int
	Errors    int
	Bytes     int64
	LastError error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"parts", s.Parts,
		"html", s.HTML,
		"images", s.Images,
		"skipped", s.Skipped,
		"filtered", s.Filtered,
		"warnings", s.Warnings,
		"errors", s.Errors,
		"bytes", s.Bytes,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Apply folds a single event into the summary. Every event except errors
// corresponds to exactly one archive part.
func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeHTML:
		c.summary.Parts++
		c.summary.HTML++
		c.summary.Bytes += evt.Part.Size
	case EventTypeImage:
		c.summary.Parts++
		c.summary.Images++
		c.summary.Bytes += evt.Part.Size
	case EventTypeSkipped:
		c.summary.Parts++
		c.summary.Skipped++
	case EventTypeFiltered:
		c.summary.Parts++
		c.summary.Filtered++
	case EventTypeWarning:
		c.summary.Parts++
		c.summary.Warnings++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// Pair is a single counted value.
type Pair struct {
	Key   string
	Value int
}

// Top returns up to limit entries of m ordered by count descending, then key.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}
