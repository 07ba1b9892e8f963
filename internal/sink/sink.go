// Package sink defines the media buffer the segment pipeline appends into.
// The engine never inspects payloads: it appends opaque bytes in pipeline
// order and accounts for the time they cover.
package sink

import (
	"context"
	"sync"

	"hlsplayd/internal/buffer"
	"hlsplayd/internal/logger"
)

// MediaSink is the destination for fetched media. At most one append
// sequence may be active per sink at a time; the segment pipeline's
// in-flight guard enforces that.
type MediaSink interface {
	// Append adds data covering span to the buffer. Initialization
	// payloads use a zero-length span: they occupy bytes but no time.
	Append(ctx context.Context, span buffer.Range, data []byte) error
	// Buffered reports the currently buffered time ranges.
	Buffered() buffer.TimeRanges
	// Remove drops buffered media in [start, end), for back-buffer
	// eviction.
	Remove(start, end float64) error
}

// MemorySink is an in-memory MediaSink used by the headless daemon and by
// tests. It keeps every appended payload and tracks buffered ranges.
type MemorySink struct {
	mu      sync.RWMutex
	ranges  buffer.TimeRanges
	bytes   int64
	appends int
	logger  logger.Logger
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink(log logger.Logger) *MemorySink {
	return &MemorySink{logger: log}
}

// Append implements MediaSink.
func (s *MemorySink) Append(ctx context.Context, span buffer.Range, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = s.ranges.Add(span)
	s.bytes += int64(len(data))
	s.appends++
	s.logger.Debugf("appended %d bytes covering [%.3f, %.3f)", len(data), span.Start, span.End)
	return nil
}

// Buffered implements MediaSink.
func (s *MemorySink) Buffered() buffer.TimeRanges {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(buffer.TimeRanges, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Remove implements MediaSink. Byte accounting is left alone: the in-memory
// sink only models time ranges precisely.
func (s *MemorySink) Remove(start, end float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = s.ranges.Remove(start, end)
	return nil
}

// BytesAppended reports the total payload size appended so far.
func (s *MemorySink) BytesAppended() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}

// Appends reports how many append calls have completed.
func (s *MemorySink) Appends() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appends
}
