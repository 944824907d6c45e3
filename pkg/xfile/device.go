package xfile

import (
	"fmt"
	"os"

	"github.com/armon/circbuf"

	"github.com/xrepair/xrepair/internal/xferrors"
)

// Device is the raw block-device interface of spec.md §6: sector-sized, aligned reads/writes,
// identified by a path, with a Flush that forces a write-cache drain. Device discovery and sizing
// are external collaborators per spec.md §1 — this type only wraps the already-opened handle.
type Device struct {
	path string
	f    *os.File

	crashAfter int64 // writes remaining before a simulated crash; <=0 disables simulation
	writes     int64
	recent     *circbuf.Buffer // ring of recent write descriptions, surfaced on a simulated crash
}

// OpenDevice opens path for read/write block access. Failure to open is fatal per spec.md §6.
func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, xferrors.Wrap(xferrors.KindIoError, path, err)
	}
	recent, _ := circbuf.NewBuffer(4096)
	return &Device{path: path, f: f, recent: recent}, nil
}

// SimulateCrashAfter arms the LIBXFS_DEBUG_WRITE_CRASH behavior: the device reports an I/O error
// after n further writes, per spec.md §6's environment variable table.
func (d *Device) SimulateCrashAfter(n int64) {
	d.crashAfter = n
}

// ReadAt reads a sector-aligned block.
func (d *Device) ReadAt(buf []byte, off int64) error {
	_, err := d.f.ReadAt(buf, off)
	if err != nil {
		return xferrors.Wrap(xferrors.KindIoError, d.path, err)
	}
	return nil
}

// WriteAt writes a sector-aligned block, honoring any armed crash simulation.
func (d *Device) WriteAt(buf []byte, off int64) error {
	d.writes++
	if d.recent != nil {
		_, _ = d.recent.Write([]byte(fmt.Sprintf("write #%d at %d (%d bytes)\n", d.writes, off, len(buf))))
	}

	if d.crashAfter > 0 {
		d.crashAfter--
		if d.crashAfter == 0 {
			return xferrors.Wrap(xferrors.KindIoError, d.path,
				fmt.Errorf("simulated crash after %d writes; recent activity:\n%s", d.writes, d.recent.Bytes()))
		}
	}

	_, err := d.f.WriteAt(buf, off)
	if err != nil {
		return xferrors.Wrap(xferrors.KindIoError, d.path, err)
	}
	return nil
}

// Flush forces a write-cache drain.
func (d *Device) Flush() error {
	if err := d.f.Sync(); err != nil {
		return xferrors.Wrap(xferrors.KindIoError, d.path, err)
	}
	return nil
}

// Close releases the device handle.
func (d *Device) Close() error {
	return d.f.Close()
}
