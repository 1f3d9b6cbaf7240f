package document

// streaming.go provides streaming byte-level cleanup for CSV input.
//
// CSV files arrive from many producers with two recurring defects that would
// otherwise poison rule scoring downstream:
//
//   - a UTF-8 BOM (0xEF 0xBB 0xBF) prepended by Windows tooling, which would
//     corrupt the first header label
//   - invalid UTF-8 byte sequences from legacy encodings
//
// Both are handled by io.Reader wrappers so cleanup costs O(buffer) memory
// rather than a whole-file pass. XLSX input does not need either wrapper;
// the container format guarantees valid UTF-8.

import (
	"io"
	"unicode/utf8"
)

// sanitizeForCSV wraps r with BOM skipping then UTF-8 sanitization, in that
// order: the BOM must be removed before byte inspection.
func sanitizeForCSV(r io.Reader) io.Reader {
	return newUTF8Sanitizer(newBOMSkipper(r))
}

// utf8Sanitizer replaces invalid UTF-8 sequences with '?' on the fly.
// Incomplete multi-byte sequences at a buffer boundary are carried over to
// the next read rather than being falsely rejected.
type utf8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader, sanitizing in place.
func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset

	if n == 0 {
		return 0, err
	}

	// Fast path: pure ASCII needs no inspection.
	if allASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place, replacing invalid bytes with '?', and
// returns the number of valid bytes. When not at EOF, an incomplete trailing
// sequence is saved to pending for the next read.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		if !atEOF {
			if trailing := incompleteTrailing(data); trailing > 0 {
				s.pending = append(s.pending, data[len(data)-trailing:]...)
				return len(data) - trailing
			}
		}
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if !atEOF && read+size >= len(data) && incompleteRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		if r == utf8.RuneError && size == 1 {
			// Single-byte '?' avoids expanding the buffer the way the
			// 3-byte replacement character would.
			data[write] = '?'
			write++
			read++
		} else {
			copy(data[write:], data[read:read+size])
			write += size
			read += size
		}
	}

	return write
}

// incompleteTrailing returns how many bytes at the end of data form the start
// of a multi-byte sequence that has not finished.
func incompleteTrailing(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < seqLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// seqLen returns the expected byte length of a UTF-8 sequence starting with b.
func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0 // continuation byte
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

func incompleteRune(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return seqLen(data[0]) > len(data)
}

// bomSkipper removes a leading UTF-8 BOM if present.
type bomSkipper struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	bufData    []byte
	bufOffset  int
}

func newBOMSkipper(r io.Reader) *bomSkipper {
	return &bomSkipper{reader: r}
}

// Read implements io.Reader. The first call inspects the first three bytes
// and drops them when they are the BOM.
func (r *bomSkipper) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if n == 0 {
			return 0, err
		}

		if n >= 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF {
			r.bufData = nil
		} else {
			r.bufData = r.buf[:n]
			r.bufOffset = 0
		}

		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}

		if len(r.bufData) > 0 {
			copied := copy(p, r.bufData[r.bufOffset:])
			r.bufOffset += copied
			if r.bufOffset >= len(r.bufData) {
				r.bufData = nil
			}
			if copied < len(p) && err != io.EOF {
				n, err2 := r.reader.Read(p[copied:])
				return copied + n, err2
			}
			return copied, err
		}
	}

	if len(r.bufData) > r.bufOffset {
		copied := copy(p, r.bufData[r.bufOffset:])
		r.bufOffset += copied
		if r.bufOffset >= len(r.bufData) {
			r.bufData = nil
		}
		return copied, nil
	}

	return r.reader.Read(p)
}
