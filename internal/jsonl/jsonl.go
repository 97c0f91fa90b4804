// Package jsonl decodes newline-delimited JSON.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// LineError reports a line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("jsonl: line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Decode reads r to the end and decodes each non-blank line as one T, in
// order. A trailing line without a newline is decoded like any other. The
// first line that fails to decode aborts the read.
func Decode[T any](r io.Reader) ([]T, error) {
	var out []T
	err := Each(r, func(v T) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Each decodes r line by line and calls fn for every value. Returning an
// error from fn stops the read and returns that error.
func Each[T any](r io.Reader, fn func(T) error) error {
	br := bufio.NewReaderSize(r, 64<<10)
	lineNo := 0
	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				var v T
				if err := json.Unmarshal(trimmed, &v); err != nil {
					return &LineError{Line: lineNo, Err: err}
				}
				if err := fn(v); err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}
