// Package progress copies a sized stream in fixed segments and reports how much of it was written.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultSegmentSize is the number of bytes copied between two progress samples.
const DefaultSegmentSize int64 = 2048

// ErrSizeChanged is returned when the source ends before the announced size.
var ErrSizeChanged = errors.New("source is shorter than its announced size")

// Listener receives the written percentage, 0..100.
// It is called from the copying goroutine and should return quickly.
type Listener func(percent int)

// Tracker copies a stream segment by segment, sampling the percentage before each segment.
// A Tracker belongs to a single copy; it is not safe for concurrent use.
type Tracker struct {
	segmentSize int64
	listener    Listener
	last        int
}

// New returns a Tracker. A nil listener disables reporting, a non-positive segmentSize means DefaultSegmentSize.
func New(listener Listener, segmentSize int64) *Tracker {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	return &Tracker{
		segmentSize: segmentSize,
		listener:    listener,
		last:        -1,
	}
}

// SegmentSize ...
func (t *Tracker) SegmentSize() int64 {
	return t.segmentSize
}

// Copy writes exactly size bytes from src to dst.
// Cancellation of ctx is observed between segments.
func (t *Tracker) Copy(ctx context.Context, dst io.Writer, src io.Reader, size int64) (int64, error) {
	var written int64
	for written < size {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		t.report(Percent(written, size))

		n, err := io.CopyN(dst, src, min(t.segmentSize, size-written))
		written += n
		if errors.Is(err, io.EOF) {
			return written, fmt.Errorf("%w: read %d of %d bytes", ErrSizeChanged, written, size)
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (t *Tracker) report(percent int) {
	if t.listener == nil || percent <= t.last {
		return
	}
	t.last = percent
	t.listener(percent)
}

// Percent is floor(written / size * 100) clamped to [0, 100]. A zero size yields 0.
func Percent(written, size int64) int {
	if size <= 0 || written <= 0 {
		return 0
	}
	if written >= size {
		return 100
	}
	return int(written * 100 / size)
}
