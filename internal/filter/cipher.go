package filter

import (
	"errors"
	"fmt"
	"strings"
)

var rotorWirings = [8]struct {
	wiring  string
	notches string
}{
	{"EKMFLGDQVZNTOWYHXUSPAIBRCJ", "Q"},
	{"AJDKSIRUXBLHWTMCQGZNPYFVOE", "E"},
	{"BDFHJLCPRTXVZNYEIWGAKMUSQO", "V"},
	{"ESOVPZJAYQUIRHXLNFTGKDCMWB", "J"},
	{"VZBRGITYUPSDNHLXAWMJQOFECK", "Z"},
	{"JPGVOUMFYQBENHZRDKASXLICTW", "ZM"},
	{"NZJHGRCXMYSWBOUFAIVLPEKQDT", "ZM"},
	{"FKQHTLXOCBJSPDZRAMEWNIUYGV", "ZM"},
}

var reflectors = map[string]string{
	"B": "YRUHQSLDPXNGOKMIEBFZCWVJAT",
	"C": "FVPJIAOYEDRZXWGCTKUQSBNMHL",
}

type rotor struct {
	forward  [26]int
	backward [26]int
	notch    [26]bool
}

// EnigmaFilter is a three-rotor machine. Every call starts from the
// configured key, so encoding and decoding are the same operation.
type EnigmaFilter struct {
	rotors    [3]rotor
	start     [3]int
	plugboard [26]int
	reflector [26]int
}

// NewEnigma builds a machine from rotor digits (left to right, 1-8), a
// three-letter start key, letter pairs for the plugboard and a reflector
// name (B or C).
func NewEnigma(rotors, key, plugs, reflector string) (*EnigmaFilter, error) {
	if len(rotors) != 3 {
		return nil, fmt.Errorf("enigma: rotors must be three digits, got %q", rotors)
	}
	if len(key) != 3 {
		return nil, fmt.Errorf("enigma: key must be three letters, got %q", key)
	}
	e := &EnigmaFilter{}
	for i := 0; i < 3; i++ {
		n := int(rotors[i] - '1')
		if n < 0 || n >= len(rotorWirings) {
			return nil, fmt.Errorf("enigma: invalid rotor %q", rotors[i])
		}
		spec := rotorWirings[n]
		for j := 0; j < 26; j++ {
			out := int(spec.wiring[j] - 'A')
			e.rotors[i].forward[j] = out
			e.rotors[i].backward[out] = j
		}
		for _, c := range spec.notches {
			e.rotors[i].notch[c-'A'] = true
		}
		k, ok := letterIndex(rune(key[i]))
		if !ok {
			return nil, fmt.Errorf("enigma: invalid key letter %q", key[i])
		}
		e.start[i] = k
	}
	wiring, ok := reflectors[strings.ToUpper(strings.TrimSpace(reflector))]
	if !ok {
		return nil, fmt.Errorf("enigma: invalid reflector %q", reflector)
	}
	for j := 0; j < 26; j++ {
		e.reflector[j] = int(wiring[j] - 'A')
		e.plugboard[j] = j
	}
	if len(plugs)%2 != 0 {
		return nil, errors.New("enigma: plugs must be letter pairs")
	}
	used := map[int]bool{}
	for i := 0; i < len(plugs); i += 2 {
		a, okA := letterIndex(rune(plugs[i]))
		b, okB := letterIndex(rune(plugs[i+1]))
		if !okA || !okB {
			return nil, fmt.Errorf("enigma: invalid plug pair %q", plugs[i:i+2])
		}
		if a == b {
			continue
		}
		if used[a] || used[b] {
			return nil, fmt.Errorf("enigma: letter plugged twice in %q", plugs)
		}
		used[a], used[b] = true, true
		e.plugboard[a], e.plugboard[b] = b, a
	}
	return e, nil
}

func (e *EnigmaFilter) Encode(s string) string { return e.run(s) }
func (e *EnigmaFilter) Decode(s string) string { return e.run(s) }

func (e *EnigmaFilter) run(s string) string {
	pos := e.start
	return strings.Map(func(r rune) rune {
		c, ok := letterIndex(r)
		if !ok {
			return r
		}
		// Middle rotor double-steps with the left one.
		switch {
		case e.rotors[1].notch[pos[1]]:
			pos[1] = (pos[1] + 1) % 26
			pos[0] = (pos[0] + 1) % 26
		case e.rotors[2].notch[pos[2]]:
			pos[1] = (pos[1] + 1) % 26
		}
		pos[2] = (pos[2] + 1) % 26

		c = e.plugboard[c]
		for i := 2; i >= 0; i-- {
			c = (e.rotors[i].forward[(c+pos[i])%26] - pos[i] + 26) % 26
		}
		c = e.reflector[c]
		for i := 0; i < 3; i++ {
			c = (e.rotors[i].backward[(c+pos[i])%26] - pos[i] + 26) % 26
		}
		c = e.plugboard[c]
		if r >= 'a' {
			return rune('a' + c)
		}
		return rune('A' + c)
	}, s)
}

// VigenereFilter shifts ASCII letters by a repeating key; other characters
// pass through and do not consume key letters.
type VigenereFilter struct {
	shifts []int
}

func NewVigenere(secret string) (*VigenereFilter, error) {
	v := &VigenereFilter{}
	for _, r := range secret {
		if k, ok := letterIndex(r); ok {
			v.shifts = append(v.shifts, k)
		}
	}
	if len(v.shifts) == 0 {
		return nil, errors.New("vigenere: secret must contain at least one letter")
	}
	return v, nil
}

func (v *VigenereFilter) Encode(s string) string { return v.shift(s, 1) }
func (v *VigenereFilter) Decode(s string) string { return v.shift(s, -1) }

func (v *VigenereFilter) shift(s string, dir int) string {
	i := 0
	return strings.Map(func(r rune) rune {
		c, ok := letterIndex(r)
		if !ok {
			return r
		}
		c = (c + dir*v.shifts[i%len(v.shifts)] + 26) % 26
		i++
		if r >= 'a' {
			return rune('a' + c)
		}
		return rune('A' + c)
	}, s)
}

func letterIndex(r rune) (int, bool) {
	switch {
	case 'a' <= r && r <= 'z':
		return int(r - 'a'), true
	case 'A' <= r && r <= 'Z':
		return int(r - 'A'), true
	}
	return 0, false
}
