package mht

import (
	"strings"

	"github.com/dhcgn/mht-extract/model"
)

var contentTypeKinds = map[string]model.Kind{
	"text/html":  model.KindHTML,
	"image/jpeg": model.KindJPEG,
	"image/png":  model.KindPNG,
	"image/gif":  model.KindGIF,
}

var kindExtensions = map[model.Kind]string{
	model.KindJPEG: ".jpg",
	model.KindPNG:  ".png",
	model.KindGIF:  ".gif",
}

// PartHeader holds the recognized headers of a single part.
type PartHeader struct {
	Kind             model.Kind
	ContentType      string
	Location         string
	TargetName       string
	TransferEncoding string
}

// LookupKind maps one of the four known Content-Type values to its kind.
// The match is exact; parameters such as charset are not stripped.
func LookupKind(contentType string) model.Kind {
	return contentTypeKinds[contentType]
}

// parseHeader reads header lines until one without a colon. When that line
// is a boundary the part has no body and the boundary becomes current.
func (s *scanner) parseHeader() (hdr PartHeader, emptyBody bool, err error) {
	for {
		line, err := s.readLine("in part header")
		if err != nil {
			return hdr, false, err
		}

		if s.isBoundary(line) {
			s.current = line
			return hdr, true, nil
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return hdr, false, nil
		}

		switch strings.TrimSpace(key) {
		case "Content-Type":
			hdr.ContentType = strings.TrimSpace(value)
			hdr.Kind = LookupKind(hdr.ContentType)
		case "Content-Location":
			hdr.Location = strings.TrimSpace(value)
			hdr.TargetName = hdr.Location
		case "Content-Transfer-Encoding":
			hdr.TransferEncoding = strings.TrimSpace(value)
		}
	}
}
