package mht

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	utf8BOM         = []byte{0xef, 0xbb, 0xbf}
	boundaryPattern = regexp.MustCompile(`boundary="(.*)"$`)
)

// lineReader yields physical lines without their line terminator.
type lineReader struct {
	r    *bufio.Reader
	read int
}

func newLineReader(r io.Reader) *lineReader {
	br := bufio.NewReaderSize(r, 64*1024)
	skipBOM(br)
	return &lineReader{r: br}
}

// skipBOM drops a leading UTF-8 signature. Anything else is left unread.
func skipBOM(br *bufio.Reader) {
	sig, err := br.Peek(len(utf8BOM))
	if err != nil || !bytes.Equal(sig, utf8BOM) {
		return
	}
	_, _ = br.Discard(len(utf8BOM))
}

// next returns io.EOF only once no bytes remain; a trailing line without a
// newline is returned as a regular line.
func (l *lineReader) next() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", io.EOF
		}
	}
	l.read++
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// scanner walks the multipart structure of an archive. current always holds
// the last line read by a boundary-aware operation.
type scanner struct {
	lines    *lineReader
	boundary string
	current  string
}

func newScanner(r io.Reader) *scanner {
	return &scanner{lines: newLineReader(r)}
}

// readLine wraps next, turning end-of-stream into ErrMalformedArchive.
func (s *scanner) readLine(where string) (string, error) {
	line, err := s.lines.next()
	if err == nil {
		return line, nil
	}
	if errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: unexpected end of stream %s (line %d)", ErrMalformedArchive, where, s.lines.read)
	}
	return "", fmt.Errorf("read line %d: %w", s.lines.read+1, err)
}

// findBoundary consumes lines until one ends with a boundary="..." declaration.
func (s *scanner) findBoundary() error {
	for {
		line, err := s.lines.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: boundary not found", ErrMalformedArchive)
			}
			return fmt.Errorf("read line %d: %w", s.lines.read+1, err)
		}
		m := boundaryPattern.FindStringSubmatch(line)
		if m == nil || m[1] == "" {
			continue
		}
		s.boundary = "--" + m[1]
		return nil
	}
}

// findFirstPart discards the preamble up to the first boundary line.
func (s *scanner) findFirstPart() error {
	for {
		line, err := s.readLine("before first part")
		if err != nil {
			return err
		}
		if s.isBoundary(line) {
			s.current = line
			return nil
		}
	}
}

// isBoundary is a literal prefix match; the boundary is never a pattern.
func (s *scanner) isBoundary(line string) bool {
	return strings.HasPrefix(line, s.boundary)
}

func (s *scanner) isTerminal(line string) bool {
	return len(line) == len(s.boundary)+2 && s.isBoundary(line) && strings.HasSuffix(line, "--")
}

func (s *scanner) atTerminal() bool {
	return s.isTerminal(s.current)
}

// readBody hands every line up to the next boundary to fn. The boundary line
// becomes current, so the part loop inspects it next.
func (s *scanner) readBody(fn func(line string) error) error {
	for {
		line, err := s.readLine("in part body")
		if err != nil {
			return err
		}
		if s.isBoundary(line) {
			s.current = line
			return nil
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}
