package mht

import (
	"strconv"
	"strings"

	"github.com/dhcgn/mht-extract/model"
)

// NamePolicy decides how the base name of an image is cased.
type NamePolicy int

const (
	NameUpper NamePolicy = iota
	NamePreserve
)

// NormalizeName derives the output filename of an image part: the name up to
// its last dot (the whole name when there is none), upper-cased under
// NameUpper, plus the extension of kind. Other kinds are returned unchanged.
func NormalizeName(name string, kind model.Kind, policy NamePolicy) string {
	ext, ok := kindExtensions[kind]
	if !ok || name == "" {
		return name
	}

	base := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		base = name[:i]
	}
	if policy == NameUpper {
		base = strings.ToUpper(base)
	}
	return base + ext
}

// HTMLName is the file name of the n-th html part (1-based).
func HTMLName(n int) string {
	return "index-" + strconv.Itoa(n) + ".html"
}
