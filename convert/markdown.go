package convert

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	timeLayout   = "15:04:05"
	sectionGap   = 5 * time.Minute
	expiredLabel = "图片已失效"
)

// listNumber matches text markdown would render as an ordered list item.
var listNumber = regexp.MustCompile(`(\d+)\. `)

// ImageIndex maps image GUIDs (upper-cased file stems) to file names in the
// attachment directory.
type ImageIndex map[string]string

// LoadImageIndex lists the regular entries of dir.
func LoadImageIndex(dir string) (ImageIndex, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageDirInvalid, err)
	}

	idx := make(ImageIndex, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		idx[strings.ToUpper(stem(entry.Name()))] = entry.Name()
	}
	return idx, nil
}

// Lookup resolves an img src to an image file by its GUID. The GUID is the
// src base name without extension, compared case-insensitively.
func (idx ImageIndex) Lookup(src string) (file, guid string, ok bool) {
	guid = stem(path.Base(strings.ReplaceAll(src, `\`, "/")))
	file, ok = idx[strings.ToUpper(guid)]
	return file, guid, ok
}

// stem drops the last extension; a leading dot does not start one.
func stem(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// formatTimestamp renders a message time as a period of the day plus a
// 12-hour clock, e.g. "下午 03:04".
func formatTimestamp(t time.Time) string {
	var period string
	switch h := t.Hour(); {
	case h < 6:
		period = "凌晨"
	case h < 12:
		period = "上午"
	case h < 18:
		period = "下午"
	default:
		period = "晚上"
	}
	return period + " " + t.Format("03:04")
}

// elapsed is the forward distance from one clock time to the next, wrapping
// past midnight.
func elapsed(from, to time.Time) time.Duration {
	d := to.Sub(from) % (24 * time.Hour)
	if d < 0 {
		d += 24 * time.Hour
	}
	return d
}

// escapeText turns non-breaking spaces into spaces and keeps "1. " from
// becoming a list item.
func escapeText(s string) string {
	return listNumber.ReplaceAllString(nbspToSpace(s), `${1}\. `)
}

// dayFileName maps a date row to its markdown file name.
func dayFileName(date string) (string, error) {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) || unicode.IsControl(r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(date))

	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return name + ".md", nil
}
