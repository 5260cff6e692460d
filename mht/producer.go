package mht

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dhcgn/mht-extract/runner"
	"github.com/dhcgn/mht-extract/stats"
)

// Producer runs an extraction as a runner stage and reports into its event stream.
type Producer struct {
	path      string
	extractor *Extractor
	runner    *runner.Runner
}

func NewProducer(path string, sink Sink, opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mht path is empty")
	}

	extractor, err := NewExtractor(sink, r, logger, opts)
	if err != nil {
		return nil, err
	}

	producer := &Producer{path: path, extractor: extractor, runner: r}
	r.AddStage("mht", producer.run)
	return producer, nil
}

// Result returns the counters of the extraction.
func (p *Producer) Result() Result {
	return p.extractor.Result()
}

func (p *Producer) run(ctx context.Context) error {
	_, err := p.extractor.ExtractFile(ctx, p.path)
	if err != nil {
		p.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeError, Err: err})
	}
	return err
}

// CountParts counts the parts of the archive at path without extracting them.
func CountParts(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	defer file.Close()

	s := newScanner(file)
	if err := s.findBoundary(); err != nil {
		return 0, err
	}
	if err := s.findFirstPart(); err != nil {
		return 0, err
	}

	count := 0
	for !s.atTerminal() {
		count++
		if err := s.readBody(func(string) error { return nil }); err != nil {
			return count, err
		}
	}
	return count, nil
}
