package rcbled

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

const maxSSE = 64 << 10 // A status is far smaller.

var dataField = []byte("data:")

// WriteSSE writes p as a single SSE message.
func WriteSSE(w io.Writer, p []byte) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", p)
	return err
}

// ReadSSE returns the data of the next message, comments and other fields are skipped.
func ReadSSE(r *bufio.Reader) ([]byte, error) {
	var payload []byte
	for {
		line, err := r.ReadSlice('\n')
		if err != nil {
			if err == bufio.ErrBufferFull {
				return nil, fmt.Errorf("sse: line too long")
			}
			return payload, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if payload == nil {
				continue // Leading blank lines
			}
			return payload, nil
		}

		if data, ok := bytes.CutPrefix(line, dataField); ok {
			if payload != nil {
				payload = append(payload, '\n')
			}
			payload = append(payload, bytes.TrimPrefix(data, []byte(" "))...)
			if len(payload) > maxSSE {
				return nil, fmt.Errorf("sse: message too long")
			}
		}
	}
}
