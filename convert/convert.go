// Package convert turns extracted QQ chat log html documents into one
// markdown file per day.
package convert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/dhcgn/mht-extract/output"
)

var (
	ErrInputUnavailable = errors.New("html input unavailable")
	ErrImageDirInvalid  = errors.New("image dir is not valid")
	ErrUnknownCharset   = errors.New("unknown charset")
	ErrInvalidDate      = errors.New("invalid date row")
)

type Options struct {
	// Charset names the encoding of the html input: "" or "utf-8" reads it
	// unchanged, "auto" detects it from the document, anything else is an
	// encoding label such as "gbk".
	Charset string
}

// Result counts what the converter wrote.
type Result struct {
	Files    int
	Items    int
	Days     int
	Messages int
	System   int
	Images   int
	Expired  int
	Skipped  int
	Warnings int
}

func (r Result) LogAttrs() []any {
	return []any{
		"files", r.Files,
		"items", r.Items,
		"days", r.Days,
		"messages", r.Messages,
		"system", r.System,
		"images", r.Images,
		"expired", r.Expired,
		"skipped", r.Skipped,
		"warnings", r.Warnings,
	}
}

// Converter writes markdown for any number of html inputs into one
// directory. A day seen again within the same converter is appended to.
type Converter struct {
	markdownDir string
	images      ImageIndex
	logger      *slog.Logger
	opts        Options

	opened map[string]bool
	result Result
}

func NewConverter(imageDir, markdownDir string, logger *slog.Logger, opts Options) (*Converter, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := validateCharset(opts.Charset); err != nil {
		return nil, err
	}

	images, err := LoadImageIndex(imageDir)
	if err != nil {
		return nil, err
	}
	if err := output.PrepareDir(markdownDir); err != nil {
		return nil, fmt.Errorf("cannot create markdown dir: %w", err)
	}

	return &Converter{
		markdownDir: markdownDir,
		images:      images,
		logger:      logger,
		opts:        opts,
		opened:      make(map[string]bool),
	}, nil
}

// Result returns the counters accumulated over all inputs.
func (c *Converter) Result() Result {
	return c.result
}

// ConvertFile opens path and converts it.
func (c *Converter) ConvertFile(ctx context.Context, path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return c.result, fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	defer file.Close()

	c.logger.Info("convert chat log", "html", path)
	return c.Convert(ctx, file)
}

// Convert reads rows until the end of r. Message rows before the first
// date row have no file to go to and are skipped.
func (c *Converter) Convert(ctx context.Context, r io.Reader) (res Result, err error) {
	decoded, err := decodeReader(r, c.opts.Charset)
	if err != nil {
		return c.result, err
	}
	c.result.Files++

	var current *day
	defer func() {
		if closeErr := c.finish(current); err == nil && closeErr != nil {
			err = closeErr
			res = c.result
		}
	}()

	items := newItemReader(decoded)
	for {
		if err := ctx.Err(); err != nil {
			return c.result, err
		}

		raw, err := items.next()
		if errors.Is(err, io.EOF) {
			return c.result, nil
		}
		if err != nil {
			return c.result, fmt.Errorf("read html: %w", err)
		}
		c.result.Items++

		item, err := parseItem(raw)
		if err != nil {
			c.warn("cannot parse row", err)
			continue
		}

		switch item.Type {
		case ItemDate:
			err := c.finish(current)
			current = nil
			if err != nil {
				return c.result, err
			}
			if current, err = c.openDay(item.Text); err != nil {
				return c.result, err
			}
		case ItemUser, ItemSystem:
			if current == nil {
				c.result.Skipped++
				c.logger.Debug("message outside of a day", "sender", item.Sender, "time", item.Time)
				continue
			}
			if err := c.writeMessage(current, item); err != nil {
				return c.result, err
			}
		case ItemTitle, ItemGroup, ItemTarget:
			c.logger.Debug("chat log header", "type", item.Type, "text", item.Text)
		default:
			c.result.Skipped++
		}
	}
}

type day struct {
	date string
	path string
	file *os.File
	w    *bufio.Writer

	last    time.Time
	hasLast bool
}

// openDay creates the markdown file of date. An unusable date is a warning;
// its rows are skipped until the next date.
func (c *Converter) openDay(date string) (*day, error) {
	name, err := dayFileName(date)
	if err != nil {
		c.warn("skipping day", err)
		return nil, nil
	}

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if c.opened[name] {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	} else {
		c.result.Days++
	}

	path := filepath.Join(c.markdownDir, name)
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	c.opened[name] = true

	return &day{date: date, path: path, file: file, w: bufio.NewWriter(file)}, nil
}

func (c *Converter) finish(d *day) error {
	if d == nil {
		return nil
	}
	flushErr := d.w.Flush()
	closeErr := d.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	c.logger.Info("day exported", "date", d.date, "file", d.path)
	return nil
}

func (c *Converter) writeMessage(d *day, item Item) error {
	t, err := time.Parse(timeLayout, strings.TrimSpace(item.Time))
	if err != nil {
		c.warn("skipping message", fmt.Errorf("bad time %q of %s: %w", item.Time, item.Sender, err))
		return nil
	}

	var text string
	if item.Type == ItemSystem {
		// one segment for a recalled message, two for a window shake
		switch len(item.Segments) {
		case 1:
			text = c.render(item.Segments[0])
		case 2:
			text = c.render(item.Segments[1])
		default:
			c.result.Skipped++
			c.logger.Debug("unknown system message", "sender", item.Sender, "segments", len(item.Segments))
			return nil
		}
	}

	newSection := !d.hasLast || elapsed(d.last, t) >= sectionGap
	blankLine := d.hasLast && newSection
	d.last, d.hasLast = t, true

	var b strings.Builder
	if blankLine {
		b.WriteString("\n")
	}
	if newSection {
		fmt.Fprintf(&b, "> [!abstract] %s\n", formatTimestamp(t))
	}
	b.WriteString("> \n")

	if item.Type == ItemSystem {
		fmt.Fprintf(&b, "> <center><font color=\"gray\">%s</font></center>\n", text)
		c.result.System++
	} else {
		fmt.Fprintf(&b, ">> [!note] %s\n", item.Sender)
		b.WriteString(">> ")
		for _, seg := range item.Segments {
			if seg.Kind == SegmentBreak {
				b.WriteString("\n>> \n>> ")
				continue
			}
			b.WriteString(c.render(seg))
		}
		b.WriteString("\n")
		c.result.Messages++
	}

	if _, err := d.w.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	return nil
}

// render maps a segment to markdown. Images found in the attachment
// directory become embeds, missing ones a marked link to their GUID.
func (c *Converter) render(seg Segment) string {
	switch seg.Kind {
	case SegmentBreak:
		return "\n"
	case SegmentImage:
		file, guid, ok := c.images.Lookup(seg.Value)
		if ok {
			c.result.Images++
			return "![[" + file + "]]"
		}
		c.result.Expired++
		return "[[" + guid + "|" + expiredLabel + "]]"
	}
	return escapeText(seg.Value)
}

func (c *Converter) warn(msg string, err error) {
	c.result.Warnings++
	c.logger.Warn(msg, "err", err)
}

func decodeReader(r io.Reader, label string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "auto":
		return charset.NewReader(r, "text/html")
	}
	return charset.NewReaderLabel(label, r)
}

func validateCharset(label string) error {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8", "auto":
		return nil
	}
	if e, _ := charset.Lookup(label); e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCharset, label)
	}
	return nil
}

// HTMLFiles lists the html documents of dir, index-N.html files first in
// numeric order, then the rest by name.
func HTMLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".html") {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.SliceStable(names, func(i, j int) bool {
		ni, iok := htmlIndex(names[i])
		nj, jok := htmlIndex(names[j])
		switch {
		case iok && jok:
			return ni < nj
		case iok != jok:
			return iok
		}
		return names[i] < names[j]
	})

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

func htmlIndex(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "index-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(digits, filepath.Ext(digits)))
	if err != nil {
		return 0, false
	}
	return n, true
}
