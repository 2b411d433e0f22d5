// Package filter implements the reversible string transforms applied to
// every inbound and outbound wire payload.
package filter

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const (
	RFC1738  = "rfc1738"
	RFC3986  = "rfc3986"
	Enigma   = "enigma"
	Vigenere = "vigenere"
	Atbash   = "atbash"
	Base64   = "base64"
)

// Filter is one reversible transform. Implementations are total: any input
// produces some output.
type Filter interface {
	Encode(s string) string
	Decode(s string) string
}

type Options struct {
	Input  []string
	Output []string

	EnigmaRotors    string
	EnigmaKey       string
	EnigmaPlugs     string
	EnigmaReflector string
	VigenereSecret  string
}

// Pipeline holds the independently configured input and output chains.
type Pipeline struct {
	input       []Filter
	output      []Filter
	outputNames []string
}

// New validates every filter parameter up front so that the pipeline can
// never fail at call time.
func New(opts Options) (*Pipeline, error) {
	p := &Pipeline{}
	cache := map[string]Filter{}
	build := func(name string) (Filter, error) {
		name = strings.ToLower(strings.TrimSpace(name))
		if f, ok := cache[name]; ok {
			return f, nil
		}
		var (
			f   Filter
			err error
		)
		switch name {
		case RFC1738:
			f = rfc1738{}
		case RFC3986:
			f = rfc3986{}
		case Enigma:
			f, err = NewEnigma(opts.EnigmaRotors, opts.EnigmaKey, opts.EnigmaPlugs, opts.EnigmaReflector)
		case Vigenere:
			f, err = NewVigenere(opts.VigenereSecret)
		case Atbash:
			f = atbash{}
		case Base64:
			f = base64Filter{}
		default:
			err = fmt.Errorf("unknown filter: %s", name)
		}
		if err != nil {
			return nil, err
		}
		cache[name] = f
		return f, nil
	}
	for _, name := range opts.Input {
		f, err := build(name)
		if err != nil {
			return nil, fmt.Errorf("input: %w", err)
		}
		p.input = append(p.input, f)
	}
	for _, name := range opts.Output {
		f, err := build(name)
		if err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
		p.output = append(p.output, f)
		p.outputNames = append(p.outputNames, strings.ToLower(strings.TrimSpace(name)))
	}
	return p, nil
}

// Decode runs the input chain in configured order.
func (p *Pipeline) Decode(s string) string {
	for _, f := range p.input {
		if s == "" {
			return ""
		}
		s = f.Decode(s)
	}
	return s
}

// Encode runs the output chain in configured order.
func (p *Pipeline) Encode(s string) string {
	for _, f := range p.output {
		if s == "" {
			return ""
		}
		s = f.Encode(s)
	}
	return s
}

// EncodeInput is the inverse of Decode: it prepares a plain value so the
// input chain turns it back into s.
func (p *Pipeline) EncodeInput(s string) string {
	for i := len(p.input) - 1; i >= 0; i-- {
		if s == "" {
			return ""
		}
		s = p.input[i].Encode(s)
	}
	return s
}

// LastOutput names the final output filter, or "" when none is configured.
func (p *Pipeline) LastOutput() string {
	if len(p.outputNames) == 0 {
		return ""
	}
	return p.outputNames[len(p.outputNames)-1]
}

type rfc1738 struct{}

func (rfc1738) Encode(s string) string {
	return escape(s, "-_.!*()", true)
}

func (rfc1738) Decode(s string) string {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return out
}

type rfc3986 struct{}

func (rfc3986) Encode(s string) string {
	return escape(s, "-_.~", false)
}

func (rfc3986) Decode(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}

const upperHex = "0123456789ABCDEF"

func escape(s, safe string, plusForSpace bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte(safe, c) >= 0:
			b.WriteByte(c)
		case c == ' ' && plusForSpace:
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&15])
		}
	}
	return b.String()
}

type atbash struct{}

func (atbash) Encode(s string) string { return atbashMap(s) }
func (atbash) Decode(s string) string { return atbashMap(s) }

func atbashMap(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z':
			return 'z' - (r - 'a')
		case 'A' <= r && r <= 'Z':
			return 'Z' - (r - 'A')
		}
		return r
	}, s)
}

type base64Filter struct{}

func (base64Filter) Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// Decode yields "" for input that is not valid base64.
func (base64Filter) Decode(s string) string {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	return string(b)
}
