package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// DefaultMaxFrameBytes is the longest line the codec accepts.
const DefaultMaxFrameBytes = 10 * 1024 * 1024

var frameTerminator = []byte("\r\n")

// Codec frames JSON values as lines on a duplex byte stream: one JSON
// document per line, CRLF on write, LF or CRLF accepted on read.
//
// ReadFrame must only be called from one goroutine. WriteFrame is safe for
// concurrent use; each frame is written and flushed atomically.
type Codec struct {
	scanner *bufio.Scanner

	mu     sync.Mutex
	writer *bufio.Writer
}

// NewCodec creates a Codec reading frames from r and writing frames to w.
// maxFrameBytes <= 0 selects DefaultMaxFrameBytes.
func NewCodec(r io.Reader, w io.Writer, maxFrameBytes int) *Codec {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	initial := 64 * 1024
	if initial > maxFrameBytes {
		initial = maxFrameBytes
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initial), maxFrameBytes)

	return &Codec{
		scanner: scanner,
		writer:  bufio.NewWriter(w),
	}
}

// ReadFrame returns the next JSON document. Empty lines are skipped. At end
// of stream it returns io.EOF. A line that is not valid UTF-8 JSON yields a
// *ParseError; the stream stays usable after it.
func (c *Codec) ReadFrame() (json.RawMessage, error) {
	for {
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read frame: %w", err)
			}
			return nil, io.EOF
		}

		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		// The scanner reuses its buffer.
		frame := make([]byte, len(line))
		copy(frame, line)

		if !utf8.Valid(frame) {
			return nil, &ParseError{Line: frame, ID: recoverID(frame), Err: errors.New("invalid UTF-8")}
		}
		if !json.Valid(frame) {
			var syntaxErr error = errors.New("invalid JSON")
			var v interface{}
			if err := json.Unmarshal(frame, &v); err != nil {
				syntaxErr = err
			}
			return nil, &ParseError{Line: frame, ID: recoverID(frame), Err: syntaxErr}
		}
		return frame, nil
	}
}

// WriteFrame marshals v and writes it as one CRLF-terminated line.
func (c *Codec) WriteFrame(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if _, err := c.writer.Write(frameTerminator); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush frame: %w", err)
	}
	return nil
}

// recoverID digs a top-level integer "id" out of a payload that failed to
// parse, so the parse error can still be addressed to the request.
func recoverID(line []byte) *int64 {
	res := gjson.GetBytes(line, "id")
	if res.Type != gjson.Number {
		return nil
	}
	id := res.Int()
	if float64(id) != res.Num {
		return nil
	}
	return &id
}
