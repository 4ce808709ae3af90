package oscscan

import "testing"

func TestStripSequencesWorkingDirectory(t *testing.T) {
	s := New()
	stripped, seqs := s.StripSequences("before\x1b]7;file://localhost/home/user\x07after")
	if stripped != "beforeafter" {
		t.Fatalf("stripped = %q, want %q", stripped, "beforeafter")
	}
	if len(seqs) != 1 || seqs[0].Kind != WorkingDirectory || seqs[0].Path != "/home/user" {
		t.Fatalf("unexpected sequences: %+v", seqs)
	}
}

func TestStripSequencesClipboard(t *testing.T) {
	s := New()
	stripped, seqs := s.StripSequences("text\x1b]52;c;SGVsbG8=\x07")
	if stripped != "text" {
		t.Fatalf("stripped = %q, want %q", stripped, "text")
	}
	if len(seqs) != 1 || seqs[0].Kind != Clipboard || seqs[0].Selection != SelClipboard || seqs[0].Content != "Hello" {
		t.Fatalf("unexpected sequences: %+v", seqs)
	}
}

func TestClipboardOverCapIsUnknown(t *testing.T) {
	s := New().WithMaxClipboard(10)
	payload := "52;c;" + stringsRepeat("A", 100)
	got := s.Parse(payload)
	if got.Kind != Unknown {
		t.Fatalf("expected Unknown for oversized payload, got %+v", got)
	}
}

func TestUnterminatedSequenceIsLeftInPlace(t *testing.T) {
	s := New()
	input := "before\x1b]7;file://localhost/home/user"
	stripped, seqs := s.StripSequences(input)
	if stripped != input {
		t.Fatalf("unterminated OSC should be left untouched, got %q", stripped)
	}
	if len(seqs) != 0 {
		t.Fatalf("expected no extracted sequences, got %+v", seqs)
	}
}

func TestURLDecode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/path%20with%20spaces", "/path with spaces"},
		{"%2", "%2"},
		{"%", "%"},
		{"%zz", "%zz"},
		{"plain", "plain"},
	}
	for _, c := range cases {
		if got := urlDecode(c.in); got != c.want {
			t.Errorf("urlDecode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestScannerNeverPanicsOnArbitraryInput(t *testing.T) {
	s := New()
	inputs := []string{
		"",
		"\x1b]",
		"\x1b]\x07",
		"\x1b]\x1b\\",
		string([]byte{0xff, 0xfe, 0x00, 0x1b, ']'}),
		"\x1b]52;zzzz;not-base64!!!\x07",
		"\x1b]7;file://localhost/weird%path\x07",
	}
	for _, in := range inputs {
		stripped, _ := s.StripSequences(in)
		if len(stripped) > len(in) {
			t.Errorf("stripped output longer than input for %q", in)
		}
	}
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
