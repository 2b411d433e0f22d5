package filter

import (
	"strings"
	"testing"
)

func printableASCII() string {
	var b strings.Builder
	for c := byte(' '); c <= '~'; c++ {
		b.WriteByte(c)
	}
	return b.String()
}

func TestEnigmaKnownVector(t *testing.T) {
	e, err := NewEnigma("123", "AAA", "", "B")
	if err != nil {
		t.Fatalf("new enigma: %v", err)
	}
	if got := e.Encode("AAAAA"); got != "BDZGO" {
		t.Fatalf("expected BDZGO, got %s", got)
	}
}

func TestCipherSymmetry(t *testing.T) {
	enigma, err := NewEnigma("375", "qzr", "abcdxy", "C")
	if err != nil {
		t.Fatalf("new enigma: %v", err)
	}
	vigenere, err := NewVigenere("Corrade Secret")
	if err != nil {
		t.Fatalf("new vigenere: %v", err)
	}
	inputs := []string{
		printableASCII(),
		"group=MyGroup&password=secret&command=echo",
		"The quick brown fox jumps over the lazy dog, 12345 times!",
		strings.Repeat("A", 700),
	}
	for name, f := range map[string]Filter{
		"enigma":   enigma,
		"vigenere": vigenere,
		"atbash":   atbash{},
		"base64":   base64Filter{},
		"rfc1738":  rfc1738{},
		"rfc3986":  rfc3986{},
	} {
		for _, in := range inputs {
			if got := f.Decode(f.Encode(in)); got != in {
				t.Fatalf("%s: round trip mismatch for %q: %q", name, in, got)
			}
		}
	}
}

func TestEnigmaNeverMapsLetterToItself(t *testing.T) {
	e, err := NewEnigma("123", "abc", "", "B")
	if err != nil {
		t.Fatalf("new enigma: %v", err)
	}
	in := strings.Repeat("abcdefghijklmnopqrstuvwxyz", 4)
	out := e.Encode(in)
	for i := range in {
		if in[i] == out[i] {
			t.Fatalf("letter %q mapped to itself at %d", in[i], i)
		}
	}
}

func TestURLEscapeVariants(t *testing.T) {
	if got := (rfc1738{}).Encode("a b&c=d~"); got != "a+b%26c%3Dd%7E" {
		t.Fatalf("rfc1738: %s", got)
	}
	if got := (rfc3986{}).Encode("a b&c=d~"); got != "a%20b%26c%3Dd~" {
		t.Fatalf("rfc3986: %s", got)
	}
	if got := (rfc1738{}).Decode("%zz"); got != "%zz" {
		t.Fatalf("bad escape should pass through, got %q", got)
	}
	if got := (base64Filter{}).Decode("!!not base64"); got != "" {
		t.Fatalf("bad base64 should decode empty, got %q", got)
	}
}

func TestPipelineOrderAndAsymmetry(t *testing.T) {
	p, err := New(Options{
		Input:  []string{"rfc1738", "base64"},
		Output: []string{"base64", "rfc1738"},
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	encoded := p.Encode("hello world")
	if encoded != "aGVsbG8gd29ybGQ%3D" {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	if got := p.Decode(encoded); got != "hello world" {
		t.Fatalf("unexpected decoding: %s", got)
	}
	if p.LastOutput() != RFC1738 {
		t.Fatalf("unexpected last output: %s", p.LastOutput())
	}
	if p.Encode("") != "" || p.Decode("") != "" {
		t.Fatal("empty input must stay empty")
	}
}

func TestEncodeInputInvertsDecode(t *testing.T) {
	p, err := New(Options{Input: []string{"rfc1738", "vigenere"}, VigenereSecret: "lemon"})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	for _, in := range []string{"attack at dawn", "a&b=c", "x"} {
		if got := p.Decode(p.EncodeInput(in)); got != in {
			t.Fatalf("round trip of %q gave %q", in, got)
		}
	}
}

func TestPipelineRejectsInvalidParameters(t *testing.T) {
	bad := []Options{
		{Input: []string{"rot13"}},
		{Output: []string{"enigma"}, EnigmaRotors: "129", EnigmaKey: "aaa", EnigmaReflector: "B"},
		{Output: []string{"enigma"}, EnigmaRotors: "123", EnigmaKey: "a1a", EnigmaReflector: "B"},
		{Output: []string{"enigma"}, EnigmaRotors: "123", EnigmaKey: "aaa", EnigmaReflector: "A"},
		{Output: []string{"enigma"}, EnigmaRotors: "123", EnigmaKey: "aaa", EnigmaReflector: "B", EnigmaPlugs: "abac"},
		{Input: []string{"vigenere"}, VigenereSecret: "1234"},
	}
	for i, opts := range bad {
		if _, err := New(opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
