// Package oscscan extracts Operating System Command (OSC) escape sequences
// of interest to the front-end — OSC 7 working-directory reports and OSC 52
// clipboard operations — from a chunk of terminal output, stripping them
// from the forwarded byte stream.
package oscscan

import (
	"encoding/base64"
	"log/slog"
	"strings"
)

const (
	oscStart = "\x1b]"
	bel      = '\x07'
	st       = "\x1b\\"

	// DefaultMaxClipboard is the cap on OSC 52 payload size before the
	// sequence is dropped with a warning rather than decoded.
	DefaultMaxClipboard = 1024 * 1024
)

// SequenceKind discriminates the parsed event carried by a Sequence.
type SequenceKind int

const (
	Unknown SequenceKind = iota
	WorkingDirectory
	Clipboard
)

// ClipboardSelection is the target named by the first character of an OSC
// 52 selection parameter.
type ClipboardSelection int

const (
	SelClipboard ClipboardSelection = iota
	SelPrimary
	SelSecondary
	SelSelect
	SelCutBuffer
)

func selectionFromChar(c byte) (ClipboardSelection, int, bool) {
	switch {
	case c == 'c':
		return SelClipboard, 0, true
	case c == 'p':
		return SelPrimary, 0, true
	case c == 'q':
		return SelSecondary, 0, true
	case c == 's':
		return SelSelect, 0, true
	case c >= '0' && c <= '7':
		return SelCutBuffer, int(c - '0'), true
	default:
		return 0, 0, false
	}
}

// Sequence is one parsed OSC event.
type Sequence struct {
	Kind SequenceKind
	Path string // WorkingDirectory

	Selection    ClipboardSelection // Clipboard
	CutBufferNum int                // Clipboard, when Selection == SelCutBuffer
	Content      string             // Clipboard
}

// Scanner holds scanner configuration. The zero value is not ready for use;
// construct with New.
type Scanner struct {
	maxClipboard int
	logger       *slog.Logger
}

// New returns a Scanner with the default clipboard size cap.
func New() *Scanner {
	return &Scanner{maxClipboard: DefaultMaxClipboard, logger: slog.Default()}
}

// WithMaxClipboard returns a copy of the scanner with a different clipboard
// size cap, for tests and callers that need a tighter bound.
func (s *Scanner) WithMaxClipboard(n int) *Scanner {
	cp := *s
	cp.maxClipboard = n
	return &cp
}

// WithLogger returns a copy of the scanner that logs dropped oversized
// clipboard payloads through logger instead of the default logger.
func (s *Scanner) WithLogger(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	cp := *s
	cp.logger = logger
	return &cp
}

// parsed is an extracted sequence plus its byte-offset span in the input
// (end is exclusive, including the terminator).
type parsed struct {
	seq   Sequence
	start int
	end   int
}

// Parse interprets the payload of a single OSC sequence (the text between
// "ESC ]" and its terminator, exclusive of both).
func (s *Scanner) Parse(data string) Sequence {
	if data == "" {
		return Sequence{Kind: Unknown}
	}
	if rest, ok := strings.CutPrefix(data, "7;"); ok {
		if path, ok := parseFileURL(rest); ok {
			return Sequence{Kind: WorkingDirectory, Path: path}
		}
		if strings.HasPrefix(rest, "/") {
			return Sequence{Kind: WorkingDirectory, Path: urlDecode(rest)}
		}
	}
	if rest, ok := strings.CutPrefix(data, "52;"); ok {
		if cd, ok := s.parseClipboard(rest); ok {
			return cd
		}
	}
	return Sequence{Kind: Unknown}
}

func parseFileURL(url string) (string, bool) {
	rest, ok := strings.CutPrefix(url, "file://")
	if !ok {
		return "", false
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return urlDecode(rest[idx:]), true
	}
	return "", false
}

func (s *Scanner) parseClipboard(data string) (Sequence, bool) {
	parts := strings.SplitN(data, ";", 2)
	if len(parts) != 2 {
		return Sequence{}, false
	}
	selStr, b64 := parts[0], parts[1]

	sel, cutNum := SelClipboard, 0
	if len(selStr) > 0 {
		if parsedSel, n, ok := selectionFromChar(selStr[0]); ok {
			sel, cutNum = parsedSel, n
		}
	}

	if len(b64) > s.maxClipboard {
		s.logger.Warn("dropping oversized OSC 52 clipboard payload",
			"size", len(b64), "max", s.maxClipboard)
		return Sequence{}, false
	}
	if b64 == "" {
		return Sequence{Kind: Clipboard, Selection: sel, CutBufferNum: cutNum, Content: ""}, true
	}

	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Sequence{}, false
	}
	if !isValidUTF8(decoded) {
		return Sequence{}, false
	}
	return Sequence{Kind: Clipboard, Selection: sel, CutBufferNum: cutNum, Content: string(decoded)}, true
}

func isValidUTF8(b []byte) bool {
	return strings.ToValidUTF8(string(b), "�") == string(b)
}

// ExtractSequences finds every well-terminated OSC sequence in data and
// returns their parsed form with byte-offset spans. An OSC start with no
// terminator before end-of-string is left unconsumed.
func (s *Scanner) ExtractSequences(data string) []parsed {
	var results []parsed
	searchStart := 0

	for {
		idx := strings.Index(data[searchStart:], oscStart)
		if idx < 0 {
			break
		}
		absStart := searchStart + idx
		contentStart := absStart + len(oscStart)
		if contentStart >= len(data) {
			break
		}

		remaining := data[contentStart:]
		belPos := strings.IndexByte(remaining, bel)
		stPos := strings.Index(remaining, st)

		var endOffset, termLen int
		switch {
		case belPos >= 0 && stPos >= 0:
			if belPos <= stPos {
				endOffset, termLen = belPos, 1
			} else {
				endOffset, termLen = stPos, len(st)
			}
		case belPos >= 0:
			endOffset, termLen = belPos, 1
		case stPos >= 0:
			endOffset, termLen = stPos, len(st)
		default:
			searchStart = contentStart
			continue
		}

		content := remaining[:endOffset]
		absEnd := contentStart + endOffset + termLen

		results = append(results, parsed{
			seq:   s.Parse(content),
			start: absStart,
			end:   absEnd,
		})
		searchStart = absEnd
	}

	return results
}

// StripSequences removes every well-terminated OSC sequence from data and
// returns the remainder alongside the ordered list of events that were
// extracted. A started-but-unterminated OSC at end-of-chunk is left in
// place. Never panics on arbitrary input.
func (s *Scanner) StripSequences(data string) (string, []Sequence) {
	results := s.ExtractSequences(data)
	if len(results) == 0 {
		return data, nil
	}

	var b strings.Builder
	b.Grow(len(data))
	seqs := make([]Sequence, 0, len(results))
	lastEnd := 0
	for _, r := range results {
		b.WriteString(data[lastEnd:r.start])
		lastEnd = r.end
		seqs = append(seqs, r.seq)
	}
	b.WriteString(data[lastEnd:])
	return b.String(), seqs
}

// urlDecode decodes %HH escapes. A '%' not followed by two valid hex digits
// is preserved verbatim, including any partial trailing input.
func urlDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(s) && i+2 < len(s) {
			h1, h2 := s[i+1], s[i+2]
			if v, ok := decodeHexPair(h1, h2); ok {
				b.WriteByte(v)
				i += 3
				continue
			}
			b.WriteByte('%')
			b.WriteByte(h1)
			b.WriteByte(h2)
			i += 3
			continue
		}
		if i+1 < len(s) {
			// only one byte left after '%'
			b.WriteByte('%')
			b.WriteByte(s[i+1])
			i += 2
			continue
		}
		// '%' is the last byte
		b.WriteByte('%')
		i++
	}
	return b.String()
}

func decodeHexPair(h1, h2 byte) (byte, bool) {
	n1, ok1 := hexDigit(h1)
	n2, ok2 := hexDigit(h2)
	if !ok1 || !ok2 {
		return 0, false
	}
	return n1<<4 | n2, true
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
