package mht

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mht-extract/model"
)

func readAll(t *testing.T, input string) []string {
	t.Helper()
	lr := newLineReader(strings.NewReader(input))
	var lines []string
	for {
		line, err := lr.next()
		if errors.Is(err, io.EOF) {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestLineReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "lf", input: "a\nb\n", want: []string{"a", "b"}},
		{name: "crlf", input: "a\r\nb\r\n", want: []string{"a", "b"}},
		{name: "no trailing newline", input: "a\nb", want: []string{"a", "b"}},
		{name: "blank lines", input: "\n\n", want: []string{"", ""}},
		{name: "bom", input: "\xef\xbb\xbfa\n", want: []string{"a"}},
		{name: "partial bom kept", input: "\xef\xbbx\n", want: []string{"\xef\xbbx"}},
		{name: "short input", input: "\xef", want: []string{"\xef"}},
		{name: "empty", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAll(t, tt.input))
		})
	}
}

func TestScanner_FindBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "inline", input: "Content-Type: multipart/related; boundary=\"abc\"\n", want: "--abc"},
		{name: "folded", input: "Content-Type: multipart/related;\n\ttype=\"text/html\";\n\tboundary=\"----=_NextPart_000\"\n", want: "------=_NextPart_000"},
		{name: "later in file", input: "x\ny\nz\nboundary=\"late\"\n", want: "--late"},
		{name: "not at end of line", input: "boundary=\"abc\"; charset=utf-8\n", wantErr: true},
		{name: "empty value", input: "boundary=\"\"\n", wantErr: true},
		{name: "none", input: "Subject: hi\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScanner(strings.NewReader(tt.input))
			err := s.findBoundary()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedArchive)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.boundary)
		})
	}
}

func TestScanner_BoundaryLines(t *testing.T) {
	s := &scanner{boundary: "--X"}

	assert.True(t, s.isBoundary("--X"))
	assert.True(t, s.isBoundary("--X--"))
	assert.True(t, s.isBoundary("--Xtrailing"))
	assert.False(t, s.isBoundary(" --X"))

	assert.True(t, s.isTerminal("--X--"))
	assert.False(t, s.isTerminal("--X"))
	assert.False(t, s.isTerminal("--X---"))
	assert.False(t, s.isTerminal("--Xab"))
	assert.False(t, s.isTerminal("--Y--"))
}

func TestScanner_ParseHeader(t *testing.T) {
	input := strings.Join([]string{
		"Content-Type: image/png",
		"content-location: ignored.png",
		"X-Custom: whatever",
		"Content-Location:   http://host/a.b/pic.png  ",
		"Content-Transfer-Encoding:base64",
		"",
		"body",
	}, "\n")

	s := newScanner(strings.NewReader(input))
	s.boundary = "--X"
	hdr, emptyBody, err := s.parseHeader()
	require.NoError(t, err)

	assert.False(t, emptyBody)
	assert.Equal(t, model.KindPNG, hdr.Kind)
	assert.Equal(t, "image/png", hdr.ContentType)
	assert.Equal(t, "http://host/a.b/pic.png", hdr.Location)
	assert.Equal(t, "base64", hdr.TransferEncoding)

	line, err := s.lines.next()
	require.NoError(t, err)
	assert.Equal(t, "body", line, "header block terminator is consumed")
}

func TestScanner_ParseHeaderUnknownType(t *testing.T) {
	s := newScanner(strings.NewReader("Content-Type: text/html; charset=utf-8\n\n"))
	s.boundary = "--X"
	hdr, _, err := s.parseHeader()
	require.NoError(t, err)
	assert.Equal(t, model.KindUnknown, hdr.Kind)
	assert.Equal(t, "text/html; charset=utf-8", hdr.ContentType)
}

func TestLookupKind(t *testing.T) {
	assert.Equal(t, model.KindHTML, LookupKind("text/html"))
	assert.Equal(t, model.KindJPEG, LookupKind("image/jpeg"))
	assert.Equal(t, model.KindPNG, LookupKind("image/png"))
	assert.Equal(t, model.KindGIF, LookupKind("image/gif"))
	assert.Equal(t, model.KindUnknown, LookupKind("image/bmp"))
	assert.Equal(t, model.KindUnknown, LookupKind("IMAGE/PNG"))
	assert.Equal(t, model.KindUnknown, LookupKind(""))
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		kind   model.Kind
		policy NamePolicy
		want   string
	}{
		{name: "jpeg", in: "Photo.JPG", kind: model.KindJPEG, want: "PHOTO.jpg"},
		{name: "no dot", in: "image", kind: model.KindPNG, want: "IMAGE.png"},
		{name: "multiple dots", in: "a.b.c.gif", kind: model.KindGIF, want: "A.B.C.gif"},
		{name: "extension replaced", in: "{guid}.dat", kind: model.KindPNG, want: "{GUID}.png"},
		{name: "leading dot", in: ".hidden", kind: model.KindPNG, want: ".png"},
		{name: "html unchanged", in: "page.htm", kind: model.KindHTML, want: "page.htm"},
		{name: "unknown unchanged", in: "style.css", kind: model.KindUnknown, want: "style.css"},
		{name: "empty", in: "", kind: model.KindPNG, want: ""},
		{name: "preserve", in: "Photo.JPG", kind: model.KindJPEG, policy: NamePreserve, want: "Photo.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in, tt.kind, tt.policy))
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	first := NormalizeName("Photo.JPG", model.KindJPEG, NameUpper)
	assert.Equal(t, "PHOTO.jpg", first)

	base := strings.TrimSuffix(first, ".jpg")
	assert.Equal(t, first, NormalizeName(base, model.KindJPEG, NameUpper))
	assert.Equal(t, first, NormalizeName(first, model.KindJPEG, NameUpper))
}

func TestHTMLName(t *testing.T) {
	assert.Equal(t, "index-1.html", HTMLName(1))
	assert.Equal(t, "index-12.html", HTMLName(12))
}
