package logging

import (
	"bytes"
	"io"
)

// PrefixWriter wraps an io.Writer, prepending a fixed prefix to each
// complete line before forwarding it.
type PrefixWriter struct {
	prefix string
	writer io.Writer
	buffer bytes.Buffer
}

// NewPrefixWriter wraps w so every line written through the result is
// prefixed with prefix.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{prefix: prefix, writer: w}
}

// Write buffers p and flushes complete lines (prefix + line) to the
// underlying writer, holding back any trailing partial line until a
// newline arrives in a later call.
func (pw *PrefixWriter) Write(p []byte) (int, error) {
	n := len(p)
	if _, err := pw.buffer.Write(p); err != nil {
		return 0, err
	}

	for {
		line, err := pw.buffer.ReadBytes('\n')
		if err != nil {
			if len(line) > 0 {
				// Put the incomplete tail back; ReadBytes drained it from
				// the buffer even though it never found a newline.
				if _, wErr := pw.buffer.Write(line); wErr != nil {
					return 0, wErr
				}
			}
			break
		}

		if _, err := pw.writer.Write([]byte(pw.prefix)); err != nil {
			return 0, err
		}
		if _, err := pw.writer.Write(line); err != nil {
			return 0, err
		}
	}

	return n, nil
}
