package vector

import (
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/nidx/nidx/internal/xerrors"
)

// mmapHandle is the subset of mmap.MMap this package depends on, so tests
// can substitute an in-memory fake without mapping a real file.
type mmapHandle interface {
	Close() error
}

// mmapFile memory-maps path read-only and returns the handle plus the
// mapped bytes. Segment files are immutable once written, so a read-only
// mapping is always safe to share across goroutines.
func mmapFile(path string) (mmapHandle, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, xerrors.Mark(xerrors.IO, err, "open segment file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, xerrors.Mark(xerrors.IO, err, "stat segment file")
	}
	if info.Size() == 0 {
		return emptyMapping{}, nil, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, xerrors.Mark(xerrors.IO, err, "mmap segment file")
	}
	return mmapping(m), []byte(m), nil
}

// mmapping adapts mmap.MMap's Unmap to the mmapHandle.Close contract.
type mmapping mmap.MMap

func (m mmapping) Close() error { return mmap.MMap(m).Unmap() }

// emptyMapping satisfies mmapHandle for zero-length files without invoking
// the mmap syscall, which rejects zero-length mappings on some platforms.
type emptyMapping struct{}

func (emptyMapping) Close() error { return nil }
