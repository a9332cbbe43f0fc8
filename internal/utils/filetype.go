package utils

import (
	"fmt"
	"io"
	"net/http"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"
)

// FileKind summarises what a finished download looks like on disk.
type FileKind struct {
	Size      int64
	MIME      string
	Extension string
}

// SniffFile reads the first 512 bytes of path to classify its content.
// Magic-number detection wins; otherwise the net/http content sniffer is used
// so text formats (json, txt, md) still get a MIME type.
func SniffFile(fs afero.Fs, path string) (FileKind, error) {
	f, err := fs.Open(path)
	if err != nil {
		return FileKind{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileKind{}, err
	}

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileKind{}, fmt.Errorf("reading header: %w", err)
	}
	header = header[:n]

	kind := FileKind{Size: info.Size()}
	if match, _ := filetype.Match(header); match != filetype.Unknown {
		kind.MIME = match.MIME.Value
		kind.Extension = match.Extension
		return kind, nil
	}
	if n > 0 {
		kind.MIME = http.DetectContentType(header)
	}
	return kind, nil
}

// LooksLikeHTML flags the classic "saved an error page instead of the file"
// outcome for binary artifacts.
func (k FileKind) LooksLikeHTML() bool {
	return len(k.MIME) >= 9 && k.MIME[:9] == "text/html"
}
