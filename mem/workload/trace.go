// Package workload produces the requests that drive a memory hierarchy: access
// traces read from files and a random agent that checks the data it reads.
package workload

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim/id"
)

// A Source produces requests one at a time. It returns io.EOF when it has no
// more requests.
type Source interface {
	Next() (mem.Request, error)
}

// A Checker is a Source that wants to see the responses to its requests.
type Checker interface {
	Check(req mem.Request, rsp mem.Response) error
}

// A TraceReader reads requests from a text trace. Each line is
//
//	<kind> <address> <size> [data]
//
// where kind is F/I (fetch), L/R (load) or S/W (store), address is
// hexadecimal with or without 0x, size is decimal, and data is the
// hexadecimal bytes of a store. Stores without data write zeros. Blank lines
// and text after '#' are ignored.
type TraceReader struct {
	scanner     *bufio.Scanner
	line        int
	idGenerator id.IDGenerator
}

// NewTraceReader creates a reader over r.
func NewTraceReader(r io.Reader) *TraceReader {
	return &TraceReader{
		scanner:     bufio.NewScanner(r),
		idGenerator: id.NewIDGenerator(),
	}
}

// Next returns the next request of the trace.
func (t *TraceReader) Next() (mem.Request, error) {
	for t.scanner.Scan() {
		t.line++

		text := t.scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}

		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		req, err := parseLine(fields)
		if err != nil {
			return mem.Request{}, fmt.Errorf("trace line %d: %w", t.line, err)
		}

		req.ID = t.idGenerator.Generate()

		return req, nil
	}

	if err := t.scanner.Err(); err != nil {
		return mem.Request{}, err
	}

	return mem.Request{}, io.EOF
}

func parseLine(fields []string) (mem.Request, error) {
	if len(fields) < 3 || len(fields) > 4 {
		return mem.Request{}, fmt.Errorf("expected 3 or 4 fields, got %d",
			len(fields))
	}

	kind, err := mem.ParseAccessKind(fields[0])
	if err != nil {
		return mem.Request{}, err
	}

	addr, err := strconv.ParseUint(
		strings.TrimPrefix(strings.ToLower(fields[1]), "0x"), 16, 64)
	if err != nil {
		return mem.Request{}, fmt.Errorf("bad address %q", fields[1])
	}

	size, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil || size == 0 {
		return mem.Request{}, fmt.Errorf("bad size %q", fields[2])
	}

	req := mem.Request{Address: addr, Kind: kind, Size: size}

	if len(fields) == 4 {
		if kind != mem.Store {
			return mem.Request{}, fmt.Errorf("%s carries data", kind)
		}

		req.Data, err = hex.DecodeString(strings.TrimPrefix(fields[3], "0x"))
		if err != nil {
			return mem.Request{}, fmt.Errorf("bad data %q", fields[3])
		}

		if uint64(len(req.Data)) != size {
			return mem.Request{}, fmt.Errorf("%d bytes of data for size %d",
				len(req.Data), size)
		}
	} else if kind == mem.Store {
		req.Data = make([]byte, size)
	}

	return req, nil
}

// ParseTrace reads a whole trace.
func ParseTrace(r io.Reader) ([]mem.Request, error) {
	reader := NewTraceReader(r)

	var reqs []mem.Request

	for {
		req, err := reader.Next()
		if err == io.EOF {
			return reqs, nil
		}

		if err != nil {
			return nil, err
		}

		reqs = append(reqs, req)
	}
}

// ReadTraceFile reads a whole trace file.
func ReadTraceFile(path string) ([]mem.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseTrace(f)
}

// SliceSource serves a fixed list of requests.
type SliceSource struct {
	reqs []mem.Request
	next int
}

// NewSliceSource creates a source over reqs.
func NewSliceSource(reqs []mem.Request) *SliceSource {
	return &SliceSource{reqs: reqs}
}

// Next returns the next request of the list.
func (s *SliceSource) Next() (mem.Request, error) {
	if s.next >= len(s.reqs) {
		return mem.Request{}, io.EOF
	}

	req := s.reqs[s.next]
	s.next++

	return req, nil
}
