package demux

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
)

// fileStream is a read-only random-access view of a file, memory-mapped
// when the platform allows it and falling back to pread otherwise.
type fileStream struct {
	file     *os.File
	size     int64
	mapped   mmap.MMap
	isMapped bool
}

func openFileStream(path string) (*fileStream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", path)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "failed to stat file %s", path)
	}

	stream := &fileStream{file: file, size: stat.Size()}
	if mapped, err := mmap.Map(file, mmap.RDONLY, 0); err == nil {
		stream.mapped = mapped
		stream.isMapped = true
	}
	return stream, nil
}

// bytesAt returns n bytes starting at pos. The returned slice aliases the
// mapping when mapped and must not be retained past Close.
func (f *fileStream) bytesAt(pos int64, n int) ([]byte, error) {
	if pos < 0 || pos+int64(n) > f.size {
		return nil, errors.Newf("read of %d bytes at %d beyond file size %d", n, pos, f.size)
	}
	if f.isMapped {
		return f.mapped[pos : pos+int64(n)], nil
	}

	buf := make([]byte, n)
	if _, err := f.file.ReadAt(buf, pos); err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	return buf, nil
}

func (f *fileStream) Close() error {
	if f.isMapped {
		f.isMapped = false
		if err := f.mapped.Unmap(); err != nil {
			_ = f.file.Close()
			return errors.Wrap(err, "failed to unmap file")
		}
	}
	return f.file.Close()
}
