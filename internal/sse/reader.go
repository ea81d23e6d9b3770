package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader parses events from a text/event-stream body.
type Reader struct {
	scanner *bufio.Scanner

	current *Event
	hasData bool
	// lastID carries across events until another id field replaces it.
	lastID string
}

func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{scanner: scanner, current: &Event{}}
}

// Next blocks until a complete event is available. It returns io.EOF once the
// source is exhausted. A trailing event without a terminating blank line is
// still returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := strings.TrimSuffix(r.scanner.Text(), "\r")

		if raw == "" {
			if r.hasData {
				ev := r.current
				r.reset()
				return ev, nil
			}
			// A frame with only event or id fields dispatches nothing,
			// and its event type does not leak into the next frame.
			r.reset()
			continue
		}
		// comment / keep-alive
		if strings.HasPrefix(raw, ":") {
			continue
		}
		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if r.hasData {
		ev := r.current
		r.reset()
		return ev, nil
	}
	return nil, io.EOF
}

func (r *Reader) parseLine(line string) {
	field, value, ok := strings.Cut(line, ":")
	if ok {
		value = strings.TrimPrefix(value, " ")
	} else {
		field = line
	}

	switch field {
	case "data":
		if r.hasData {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
	case "id":
		if !strings.ContainsRune(value, 0) {
			r.lastID = value
			r.current.ID = value
		}
	}
}

func (r *Reader) reset() {
	r.current = &Event{ID: r.lastID}
	r.hasData = false
}
