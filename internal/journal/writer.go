package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const hourLayout = "2006-01-02-15"

// segment is one open hourly file: a zstd stream behind a line buffer.
type segment struct {
	hour string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return &segment{hour: hour, f: f, enc: enc, buf: bufio.NewWriterSize(enc, 64*1024)}, nil
}

func (s *segment) writeLine(b []byte) error {
	if _, err := s.buf.Write(b); err != nil {
		return err
	}
	return s.buf.WriteByte('\n')
}

// sync pushes the line buffer and the current zstd block to disk.
func (s *segment) sync() error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	if err := s.enc.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *segment) close() error {
	return errors.Join(s.buf.Flush(), s.enc.Close(), s.f.Close())
}

// JSONLZstdWriter appends JSON lines to hourly zstd-compressed files named
// prefix-YYYY-MM-DD-HH.jsonl.zst. Lines are buffered until Sync or Close.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu  sync.Mutex
	cur *segment
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Write appends v as one JSON line, starting a new file when the hour changes.
func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	hour := w.now().UTC().Format(hourLayout)
	if w.cur == nil || w.cur.hour != hour {
		if err := w.closeLocked(); err != nil {
			return err
		}
		seg, err := openSegment(w.pathForHour(hour), hour)
		if err != nil {
			return err
		}
		w.cur = seg
	}
	return w.cur.writeLine(b)
}

// Sync makes everything written so far durable in the current file.
func (w *JSONLZstdWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return nil
	}
	return w.cur.sync()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.cur == nil {
		return nil
	}
	err := w.cur.close()
	w.cur = nil
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ReadFile decodes every line of a journal file into raw JSON messages.
func ReadFile(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []json.RawMessage
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		out = append(out, json.RawMessage(append([]byte(nil), sc.Bytes()...)))
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
