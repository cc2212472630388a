package batch

import (
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

// WriteArchive writes docs to w as a deflated zip, one entry per document in
// the given order.
func WriteArchive(w io.Writer, docs []*Document, modified time.Time) error {
	zw := zip.NewWriter(w)
	for _, d := range docs {
		hdr := &zip.FileHeader{
			Name:     d.FileName,
			Method:   zip.Deflate,
			Modified: modified,
		}
		f, err := zw.CreateHeader(hdr)
		if err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", d.FileName, err)
		}
		if _, err := f.Write(d.Data); err != nil {
			zw.Close()
			return fmt.Errorf("write %s: %w", d.FileName, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}
