package celllog

import (
	"bufio"
	"bytes"
	"strings"
)

const (
	SectionPowerHeader   = "[power]"
	SectionSysinfoHeader = "[sysinfo]"
)

type LineKind int

const (
	LineField   LineKind = iota // key and values, e.g. "arfcn 128 -90"
	LineSection                 // "[power]", "[sysinfo]"
	LineBlank                   // record terminator in [sysinfo]
)

// Splitter tokenizes cell_log output. It uses the signature of
// bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// Lines end with LF; a CR before the LF is stripped so output captured
// through a terminal splits the same way. When atEOF is set the remaining
// data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of a cell_log line.
func Classify(line string) LineKind {
	switch {
	case line == "":
		return LineBlank
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return LineSection
	default:
		return LineField
	}
}
