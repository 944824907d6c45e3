package xfile

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// dump compresses r into w, grounded on spec.md §4.1's Dump operation: an xrepair diagnostic
// artifact that must stay small enough to attach to a bug report even for a multi-gigabyte rmap
// store.
func dump(w io.Writer, r io.Reader) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, r); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}
