package model

// Kind classifies a part by the Content-Type it declares.
type Kind int

const (
	KindUnknown Kind = iota
	KindHTML
	KindJPEG
	KindPNG
	KindGIF
)

func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindGIF:
		return "gif"
	default:
		return "unknown"
	}
}

// IsImage reports whether parts of this kind are decoded into the attachment directory.
func (k Kind) IsImage() bool {
	return k == KindJPEG || k == KindPNG || k == KindGIF
}

// Part represents a single part extracted from an MHT archive.
type Part struct {
	Index       int
	Kind        Kind
	ContentType string
	Location    string
	Encoding    string
	Name        string
	Size        int64
}
