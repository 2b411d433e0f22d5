// Package wire is the key=value envelope shared by every command request,
// command response and notification payload.
package wire

import (
	"sort"
	"strings"

	"corrade/internal/filter"
)

const (
	pairSep = "&"
	kvSep   = "="
)

// Encode joins the map as key=value pairs in sorted key order. Values must
// already be escaped by the caller.
func Encode(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(pairSep)
		}
		b.WriteString(k)
		b.WriteString(kvSep)
		b.WriteString(m[k])
	}
	return b.String()
}

// Decode splits a wire string into a map. Malformed input yields an empty
// map. The first occurrence of a key wins.
func Decode(s string) map[string]string {
	out := map[string]string{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for _, pair := range strings.Split(s, pairSep) {
		k, v, ok := strings.Cut(pair, kvSep)
		if !ok || k == "" {
			return map[string]string{}
		}
		if _, dup := out[k]; dup {
			continue
		}
		out[k] = v
	}
	return out
}

// Get returns the value for key, or "" when absent.
func Get(m map[string]string, key string) string {
	return m[key]
}

// Escape runs the output pipeline over every value. Keys are left alone.
func Escape(m map[string]string, p *filter.Pipeline) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = p.Encode(v)
	}
	return out
}

// Unescape runs the input pipeline over every value.
func Unescape(m map[string]string, p *filter.Pipeline) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = p.Decode(v)
	}
	return out
}

// ContentType is form-urlencoded when the last output filter is a URL
// escape, plain text otherwise.
func ContentType(p *filter.Pipeline) string {
	switch p.LastOutput() {
	case filter.RFC1738, filter.RFC3986:
		return "application/x-www-form-urlencoded"
	default:
		return "text/plain"
	}
}

// CSV joins values the way list results are carried in a single wire value.
func CSV(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		if strings.ContainsAny(v, ",\"") {
			v = "\"" + strings.ReplaceAll(v, "\"", "\"\"") + "\""
		}
		out[i] = v
	}
	return strings.Join(out, ",")
}

// SplitCSV is the inverse of CSV.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var (
		out    []string
		cur    strings.Builder
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted && c == '"' && i+1 < len(s) && s[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, cur.String())
}
