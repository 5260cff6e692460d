package mht

import "errors"

var (
	// ErrInputUnavailable is returned when the archive cannot be opened.
	ErrInputUnavailable = errors.New("mht archive unavailable")
	// ErrMalformedArchive terminates a run: no boundary declaration, or the
	// stream ended before the terminal boundary.
	ErrMalformedArchive = errors.New("malformed mht archive")
)

// Per-part errors. The part is skipped and the run continues.
var (
	ErrUnsupportedEncoding     = errors.New("unsupported transfer encoding")
	ErrUnrecognizedContentType = errors.New("unrecognized content type")
	ErrDecodeFailure           = errors.New("base64 decode failed")
	ErrMissingLocation         = errors.New("image part without Content-Location")
)
