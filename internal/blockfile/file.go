// Package blockfile implements the keyed append-only record store blocks
// and transactions are written to on disk: numbered files under a data
// directory, each record addressed by the (file_no, offset) pair the
// writer hands back at append time. Records are never rewritten in place;
// the only way to reclaim space is to prune whole files.
package blockfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultMaxFileSize is the rollover threshold: once the current file
// would exceed this size, writes continue in a new, higher-numbered file.
const DefaultMaxFileSize = 128 << 20 // 128 MiB

// recordHeaderSize is the length prefix written before every record: a
// single big-endian uint32 byte count.
const recordHeaderSize = 4

// Pos identifies one record's location: which numbered file it lives in,
// and its byte offset within that file.
type Pos struct {
	FileNo uint32
	Offset uint32
}

// Store is a single-writer, many-reader append-only log split across
// numbered files in dir (named blk00000.dat, blk00001.dat, ...). Writes
// are serialized by wmu; reads need no lock since records, once written,
// are never modified.
type Store struct {
	dir         string
	maxFileSize int64

	wmu        sync.Mutex
	curFileNo  uint32
	curFile    *os.File
	curSize    int64
}

// Open opens or creates a block file store rooted at dir. dir is created
// if it does not already exist. maxFileSize of 0 selects DefaultMaxFileSize.
func Open(dir string, maxFileSize int64) (*Store, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blockfile: create dir %s: %w", dir, err)
	}

	s := &Store{dir: dir, maxFileSize: maxFileSize}

	fileNo, err := latestFileNo(dir)
	if err != nil {
		return nil, err
	}
	if err := s.openForAppend(fileNo); err != nil {
		return nil, err
	}
	return s, nil
}

// latestFileNo scans dir for the highest-numbered blk file already
// present, so a reopened store resumes appending rather than starting
// over at file 0 and clobbering existing records.
func latestFileNo(dir string) (uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("blockfile: scan dir %s: %w", dir, err)
	}
	var highest uint32
	var found bool
	for _, e := range entries {
		var n uint32
		if _, err := fmt.Sscanf(e.Name(), "blk%05d.dat", &n); err == nil {
			if !found || n > highest {
				highest = n
				found = true
			}
		}
	}
	return highest, nil
}

func fileName(fileNo uint32) string {
	return fmt.Sprintf("blk%05d.dat", fileNo)
}

func (s *Store) openForAppend(fileNo uint32) error {
	path := filepath.Join(s.dir, fileName(fileNo))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("blockfile: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("blockfile: stat %s: %w", path, err)
	}
	if s.curFile != nil {
		s.curFile.Close()
	}
	s.curFileNo = fileNo
	s.curFile = f
	s.curSize = info.Size()
	return nil
}

// Append writes payload as one new record and returns the position of its
// start. Rolls over to a new file first if payload would push the current
// file past maxFileSize.
func (s *Store) Append(payload []byte) (Pos, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	recordSize := int64(recordHeaderSize + len(payload))
	if s.curSize > 0 && s.curSize+recordSize > s.maxFileSize {
		if err := s.openForAppend(s.curFileNo + 1); err != nil {
			return Pos{}, err
		}
	}

	pos := Pos{FileNo: s.curFileNo, Offset: uint32(s.curSize)}

	var header [recordHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := s.curFile.Write(header[:]); err != nil {
		return Pos{}, fmt.Errorf("blockfile: write header: %w", err)
	}
	if _, err := s.curFile.Write(payload); err != nil {
		return Pos{}, fmt.Errorf("blockfile: write payload: %w", err)
	}
	s.curSize += recordSize

	return pos, nil
}

// ReadAt returns the raw record bytes starting at pos. Safe to call
// concurrently with Append and with other ReadAt calls, since files are
// only ever appended to, never rewritten.
func (s *Store) ReadAt(pos Pos) ([]byte, error) {
	path := filepath.Join(s.dir, fileName(pos.FileNo))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blockfile: open %s: %w", path, err)
	}
	defer f.Close()

	var header [recordHeaderSize]byte
	if _, err := f.ReadAt(header[:], int64(pos.Offset)); err != nil {
		return nil, fmt.Errorf("blockfile: read header at %s:%d: %w", path, pos.Offset, err)
	}
	length := binary.BigEndian.Uint32(header[:])

	payload := make([]byte, length)
	if _, err := f.ReadAt(payload, int64(pos.Offset)+recordHeaderSize); err != nil {
		return nil, fmt.Errorf("blockfile: read payload at %s:%d: %w", path, pos.Offset, err)
	}
	return payload, nil
}

// CurrentFileNo reports the file currently being appended to.
func (s *Store) CurrentFileNo() uint32 {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.curFileNo
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.curFile == nil {
		return nil
	}
	return s.curFile.Close()
}
