package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const defaultPoll = 250 * time.Millisecond

// Reader tails the daemon log. A Reader bound to a job keeps only that job's
// records, and the filter runs while scanning, so line limits count kept
// lines only. Reads stop at the last complete line; a line still being written
// is returned once its newline lands.
type Reader struct {
	path   string
	jobID  string
	poll   time.Duration
	offset int64
}

// NewReader returns a Reader for path. An empty jobID keeps every line.
func NewReader(path, jobID string) *Reader {
	return &Reader{path: path, jobID: strings.TrimSpace(jobID), poll: defaultPoll}
}

// Offset reports the byte position the next read starts from.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Last returns up to n of the newest kept lines and positions the reader after
// them. A missing log yields no lines.
func (r *Reader) Last(n int) ([]string, error) {
	tail := newRing(n)
	end, err := r.scan(0, tail.push)
	if err != nil {
		return nil, err
	}
	r.offset = end
	return tail.lines(), nil
}

// Next returns the kept lines appended since the previous read. With a
// positive wait it polls until one arrives, the wait expires or ctx ends.
func (r *Reader) Next(ctx context.Context, wait time.Duration) ([]string, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		var lines []string
		end, err := r.scan(r.offset, func(line string) { lines = append(lines, line) })
		if err != nil {
			return nil, err
		}
		r.offset = end
		if len(lines) > 0 || !time.Now().Before(deadline) {
			return lines, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// scan hands every complete kept line from offset on to emit and returns the
// offset just past the last complete line. A file shorter than offset was
// truncated or replaced and is read from the start.
func (r *Reader) scan(offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return offset, fmt.Errorf("log path %q is a directory", r.path)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	pos := offset
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return pos, nil
		}
		if err != nil {
			return pos, fmt.Errorf("read log file: %w", err)
		}
		pos += int64(len(line))
		text := strings.TrimRight(line, "\r\n")
		if r.jobID == "" || belongsTo(text, r.jobID) {
			emit(text)
		}
	}
}

// ring keeps the newest n lines pushed into it.
type ring struct {
	buf   []string
	next  int
	count int
}

func newRing(n int) *ring {
	if n < 0 {
		n = 0
	}
	return &ring{buf: make([]string, n)}
}

func (r *ring) push(line string) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) lines() []string {
	out := make([]string, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % max(len(r.buf), 1)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
