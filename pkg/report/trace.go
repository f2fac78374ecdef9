package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TraceWriter appends StepRecord envelopes to a JSONL trace file. Every
// record reaches the disk before Write returns.
type TraceWriter struct {
	path string
	f    *os.File
	buf  *bufio.Writer
}

// NewTraceWriter opens the trace file for appending, creating it when
// missing.
func NewTraceWriter(path string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &TraceWriter{path: path, f: f, buf: bufio.NewWriter(f)}, nil
}

// Path returns the trace file location.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// Write appends one record as a trace event line.
func (tw *TraceWriter) Write(rec *StepRecord) error {
	line, err := json.Marshal(TraceEvent{
		Type:      "step_result",
		Timestamp: time.Now(),
		RunID:     rec.RunID,
		Result:    rec,
	})
	if err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if _, err := tw.buf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	// Step boundaries are durability points
	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.f.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the file.
func (tw *TraceWriter) Close() error {
	if err := tw.buf.Flush(); err != nil {
		return err
	}
	return tw.f.Close()
}
