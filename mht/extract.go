package mht

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/dhcgn/mht-extract/filter"
	"github.com/dhcgn/mht-extract/model"
	"github.com/dhcgn/mht-extract/stats"
)

// Sink receives the extracted documents and images.
type Sink interface {
	CreateHTML(name string) (io.WriteCloser, error)
	WriteImage(name string, data []byte) error
}

// EventSink receives one event per processed part.
type EventSink interface {
	EmitEvent(evt stats.Event)
}

type Options struct {
	// Workers bounds concurrent decode+write of image parts. Values below 2
	// keep everything on the reading goroutine.
	Workers      int
	KeepNewlines bool
	NamePolicy   NamePolicy
	// Filter is matched against the Content-Location of image parts.
	Filter *filter.Filter
}

// Result counts what a run produced.
type Result struct {
	Boundary string
	Parts    int
	HTML     int
	Images   int
	Skipped  int
	Filtered int
	Warnings int
}

// Extractor splits one archive into html documents and images.
type Extractor struct {
	sink   Sink
	events EventSink
	logger *slog.Logger
	opts   Options

	mu     sync.Mutex
	result Result
}

func NewExtractor(sink Sink, events EventSink, logger *slog.Logger, opts Options) (*Extractor, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Extractor{sink: sink, events: events, logger: logger, opts: opts}, nil
}

// Result returns a snapshot of the counters.
func (e *Extractor) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// ExtractFile opens path and extracts it.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return e.Result(), fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	defer file.Close()
	return e.Extract(ctx, file)
}

// Extract runs the part loop over r until the terminal boundary. Reads are
// strictly sequential; image writes may overlap when Workers > 1, and are
// all finished before Extract returns.
func (e *Extractor) Extract(ctx context.Context, r io.Reader) (Result, error) {
	s := newScanner(r)
	if err := s.findBoundary(); err != nil {
		return e.Result(), err
	}
	e.mu.Lock()
	e.result.Boundary = s.boundary
	e.mu.Unlock()
	e.logger.Debug("found boundary", "boundary", s.boundary)

	if err := s.findFirstPart(); err != nil {
		return e.Result(), err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	scanErr := e.parts(gctx, s, g, nameQueue{})
	waitErr := g.Wait()

	// a failed image write cancels gctx; report the write, not the cancellation
	if scanErr != nil && (waitErr == nil || !errors.Is(scanErr, context.Canceled)) {
		return e.Result(), scanErr
	}
	if waitErr != nil {
		return e.Result(), waitErr
	}
	return e.Result(), ctx.Err()
}

func (e *Extractor) parts(ctx context.Context, s *scanner, g *errgroup.Group, order nameQueue) error {
	for index := 1; !s.atTerminal(); index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, emptyBody, err := s.parseHeader()
		if err != nil {
			return err
		}
		hdr.TargetName = NormalizeName(hdr.TargetName, hdr.Kind, e.opts.NamePolicy)

		e.mu.Lock()
		e.result.Parts++
		e.mu.Unlock()

		part := model.Part{
			Index:       index,
			Kind:        hdr.Kind,
			ContentType: hdr.ContentType,
			Location:    hdr.Location,
			Encoding:    hdr.TransferEncoding,
		}

		if hdr.Kind == model.KindHTML {
			if err := e.extractHTML(s, part, emptyBody); err != nil {
				return err
			}
			continue
		}

		if err := e.extractBinary(ctx, s, hdr, part, emptyBody, g, order); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) extractHTML(s *scanner, part model.Part, emptyBody bool) (err error) {
	e.mu.Lock()
	e.result.HTML++
	n := e.result.HTML
	e.mu.Unlock()

	part.Name = HTMLName(n)
	w, err := e.sink.CreateHTML(part.Name)
	if err != nil {
		return fmt.Errorf("%s: %w", part.Name, err)
	}

	bw := bufio.NewWriter(w)
	defer func() {
		flushErr := bw.Flush()
		closeErr := w.Close()
		if err == nil {
			err = errors.Join(flushErr, closeErr)
		}
		if err != nil && !errors.Is(err, ErrMalformedArchive) {
			err = fmt.Errorf("write %s: %w", part.Name, err)
		}
	}()

	if emptyBody {
		e.reportHTML(part, n)
		return nil
	}

	err = s.readBody(func(line string) error {
		written, err := bw.WriteString(line)
		part.Size += int64(written)
		if err != nil {
			return err
		}
		if e.opts.KeepNewlines {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
			part.Size++
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.reportHTML(part, n)
	return nil
}

func (e *Extractor) reportHTML(part model.Part, n int) {
	e.logger.Info("write out html", "count", n, "name", part.Name)
	e.emit(stats.Event{Stage: stats.StageWrite, Type: stats.EventTypeHTML, Part: part})
}

func (e *Extractor) extractBinary(ctx context.Context, s *scanner, hdr PartHeader, part model.Part, emptyBody bool, g *errgroup.Group, order nameQueue) error {
	var content strings.Builder
	if !emptyBody {
		err := s.readBody(func(line string) error {
			for _, r := range line {
				if !unicode.IsSpace(r) {
					content.WriteRune(r)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	part.Size = int64(content.Len())

	if !hdr.Kind.IsImage() {
		e.skip(part, ErrUnrecognizedContentType)
		return nil
	}
	if !e.opts.Filter.Allows(hdr.Location) {
		e.mu.Lock()
		e.result.Filtered++
		e.mu.Unlock()
		e.logger.Debug("part filtered", "index", part.Index, "location", hdr.Location)
		e.emit(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeFiltered, Part: part})
		return nil
	}
	if hdr.TransferEncoding != "" && hdr.TransferEncoding != "base64" {
		e.warn(stats.StageScan, part, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, hdr.TransferEncoding))
		return nil
	}
	if hdr.TargetName == "" {
		e.warn(stats.StageScan, part, ErrMissingLocation)
		return nil
	}

	part.Name = hdr.TargetName
	payload := content.String()

	if e.opts.Workers < 2 {
		return e.writeImage(ctx, part, payload, nil)
	}

	prev, done := order.enqueue(part.Name)
	g.Go(func() error {
		defer close(done)
		return e.writeImage(ctx, part, payload, prev)
	})
	return nil
}

// writeImage decodes payload and hands it to the sink. When prev is not nil
// the write waits for it, so parts sharing a name land in archive order.
func (e *Extractor) writeImage(ctx context.Context, part model.Part, payload string, prev <-chan struct{}) error {
	data, err := base64.StdEncoding.DecodeString(payload)
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		e.warn(stats.StageWrite, part, fmt.Errorf("%w: %s: %w", ErrDecodeFailure, part.Name, err))
		return nil
	}
	if err := e.sink.WriteImage(part.Name, data); err != nil {
		return fmt.Errorf("%s: %w", part.Name, err)
	}
	part.Size = int64(len(data))

	e.mu.Lock()
	e.result.Images++
	n := e.result.Images
	e.mu.Unlock()

	e.logger.Info("write out image", "count", n, "name", part.Name, "bytes", part.Size)
	e.emit(stats.Event{Stage: stats.StageWrite, Type: stats.EventTypeImage, Part: part})
	return nil
}

// skip records an expected, non-exceptional skip.
func (e *Extractor) skip(part model.Part, reason error) {
	e.mu.Lock()
	e.result.Skipped++
	e.mu.Unlock()
	e.logger.Debug("skipping part", "index", part.Index, "contentType", part.ContentType, "reason", reason)
	e.emit(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeSkipped, Part: part, Detail: reason.Error()})
}

func (e *Extractor) warn(stage stats.Stage, part model.Part, err error) {
	e.mu.Lock()
	e.result.Warnings++
	e.mu.Unlock()
	e.logger.Warn("skipping part", "index", part.Index, "location", part.Location, "err", err)
	e.emit(stats.Event{Stage: stage, Type: stats.EventTypeWarning, Part: part, Err: err})
}

func (e *Extractor) emit(evt stats.Event) {
	if e.events != nil {
		e.events.EmitEvent(evt)
	}
}

// nameQueue chains image jobs by output name. Names are compared
// case-insensitively since they may share a file on some filesystems.
// It is only touched by the reading goroutine.
type nameQueue map[string]chan struct{}

// enqueue returns the done channel of the previous job for name, nil when
// there is none, and the channel the new job must close when it finishes.
func (q nameQueue) enqueue(name string) (prev <-chan struct{}, done chan struct{}) {
	key := strings.ToLower(name)
	if ch, ok := q[key]; ok {
		prev = ch
	}
	done = make(chan struct{})
	q[key] = done
	return prev, done
}
