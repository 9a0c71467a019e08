package library

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tinyopds/tinyopds/pkg/books"
)

// The database is a flat length-prefixed binary log. Field order and types
// are normative for compatibility with existing catalogs: little-endian
// integers, strings as a 7-bit variable-length byte count followed by
// UTF-8, timestamps as 100-ns ticks since 0001-01-01 UTC with the high two
// bits reserved for a kind discriminator.

// formatMarker opens every v1.1 database. Its absence means format v1.0,
// whose records lack the trailing added_date field.
const formatMarker = "VER1.1"

const (
	ticksPerSecond = int64(10_000_000)
	kindMask       = int64(0x3FFFFFFFFFFFFFFF)
	// Ticks between 0001-01-01 and the Unix epoch.
	unixEpochTicks = int64(621_355_968_000_000_000)
)

// Load reads the whole database file into memory and decodes it. A decode
// error on a single record terminates the load gracefully: the partial
// catalog is kept. I/O errors leave the library empty rather than failing.
func (l *Library) Load() {
	data, err := os.ReadFile(l.databasePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.log.Err(err).Warn("database read error", logger.Data{"path": l.databasePath})
		}
		return
	}

	r := bytes.NewReader(data)
	versioned := false
	if marker, err := readString(r); err == nil && marker == formatMarker {
		versioned = true
	} else {
		// v1.0 file: no marker, start over from the first record.
		r = bytes.NewReader(data)
	}

	loadTime := time.Now()
	loaded := 0
	l.mu.Lock()
	for r.Len() > 0 {
		b, err := readRecord(r, versioned)
		if err != nil {
			l.log.Err(err).Warn("database record error, keeping partial catalog", logger.Data{"loaded": loaded})
			break
		}
		if !versioned {
			b.AddedDate = loadTime
		}
		l.insertLocked(b)
		loaded++
	}
	// An upgraded v1.0 catalog is rewritten in the new format on next save.
	l.isChanged = !versioned && loaded > 0
	l.mu.Unlock()

	l.log.Info("database loaded", logger.Data{"books": loaded, "path": l.databasePath})
}

// Save recreates the database file from the in-memory catalog. An empty
// library is never saved. I/O errors are logged and swallowed.
func (l *Library) Save() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.books) == 0 {
		return
	}

	f, err := os.Create(l.databasePath)
	if err != nil {
		l.log.Err(err).Error("database create error", logger.Data{"path": l.databasePath})
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	writeString(w, formatMarker)
	for _, b := range l.books {
		writeRecord(w, b)
	}
	if err := w.Flush(); err != nil {
		l.log.Err(err).Error("database write error", logger.Data{"path": l.databasePath})
		return
	}
	l.isChanged = false
}

// Append writes a single record to the end of the log. A fresh file gets
// the format marker first.
func (l *Library) Append(b *books.Book) {
	_, statErr := os.Stat(l.databasePath)
	f, err := os.OpenFile(l.databasePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.log.Err(err).Error("database append error", logger.Data{"path": l.databasePath})
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if errors.Is(statErr, os.ErrNotExist) {
		writeString(w, formatMarker)
	}
	writeRecord(w, b)
	if err := w.Flush(); err != nil {
		l.log.Err(err).Error("database append error", logger.Data{"path": l.databasePath})
	}
}

func writeRecord(w *bufio.Writer, b *books.Book) {
	writeString(w, b.FileName)
	writeString(w, b.ID)
	binary.Write(w, binary.LittleEndian, math.Float32bits(b.Version))
	writeString(w, b.Title)
	writeString(w, b.Language)
	writeBool(w, b.HasCover)
	binary.Write(w, binary.LittleEndian, toTicks(b.BookDate))
	binary.Write(w, binary.LittleEndian, toTicks(b.DocumentDate))
	writeString(w, b.Sequence)
	binary.Write(w, binary.LittleEndian, b.NumberInSequence)
	writeString(w, b.Annotation)
	binary.Write(w, binary.LittleEndian, b.DocumentSize)
	writeStrings(w, b.Authors)
	writeStrings(w, b.Translators)
	writeStrings(w, b.Genres)
	binary.Write(w, binary.LittleEndian, toTicks(b.AddedDate))
}

func readRecord(r *bytes.Reader, versioned bool) (*books.Book, error) {
	b := &books.Book{}
	var err error
	if b.FileName, err = readString(r); err != nil {
		return nil, err
	}
	if b.ID, err = readString(r); err != nil {
		return nil, err
	}
	var bits uint32
	if err = binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return nil, err
	}
	b.Version = math.Float32frombits(bits)
	if b.Title, err = readString(r); err != nil {
		return nil, err
	}
	if b.Language, err = readString(r); err != nil {
		return nil, err
	}
	if b.HasCover, err = readBool(r); err != nil {
		return nil, err
	}
	var ticks int64
	if err = binary.Read(r, binary.LittleEndian, &ticks); err != nil {
		return nil, err
	}
	b.BookDate = fromTicks(ticks)
	if err = binary.Read(r, binary.LittleEndian, &ticks); err != nil {
		return nil, err
	}
	b.DocumentDate = fromTicks(ticks)
	if b.Sequence, err = readString(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &b.NumberInSequence); err != nil {
		return nil, err
	}
	if b.Annotation, err = readString(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &b.DocumentSize); err != nil {
		return nil, err
	}
	if b.Authors, err = readStrings(r); err != nil {
		return nil, err
	}
	if b.Translators, err = readStrings(r); err != nil {
		return nil, err
	}
	if b.Genres, err = readStrings(r); err != nil {
		return nil, err
	}
	if versioned {
		if err = binary.Read(r, binary.LittleEndian, &ticks); err != nil {
			return nil, err
		}
		b.AddedDate = fromTicks(ticks)
	}
	return b, nil
}

// writeString emits a 7-bit variable-length byte count followed by UTF-8
// bytes (LEB128, the same framing .NET catalogs use).
func writeString(w *bufio.Writer, s string) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	w.Write(buf[:n])
	w.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if n > uint64(r.Len()) {
		return "", errors.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.WithStack(err)
	}
	return string(buf), nil
}

func writeStrings(w *bufio.Writer, ss []string) {
	binary.Write(w, binary.LittleEndian, int32(len(ss)))
	for _, s := range ss {
		writeString(w, s)
	}
}

func readStrings(r *bytes.Reader) ([]string, error) {
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.WithStack(err)
	}
	if count < 0 || int(count) > r.Len() {
		return nil, errors.Errorf("invalid string count %d", count)
	}
	var out []string
	for i := int32(0); i < count; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func writeBool(w *bufio.Writer, b bool) {
	if b {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	c, err := r.ReadByte()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return c != 0, nil
}

func toTicks(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	t = t.UTC()
	return t.Unix()*ticksPerSecond + int64(t.Nanosecond())/100 + unixEpochTicks
}

// fromTicks masks the kind bits; an unknown kind is treated as UTC.
func fromTicks(ticks int64) time.Time {
	ticks &= kindMask
	if ticks == 0 {
		return time.Time{}
	}
	ticks -= unixEpochTicks
	return time.Unix(ticks/ticksPerSecond, (ticks%ticksPerSecond)*100).UTC()
}
