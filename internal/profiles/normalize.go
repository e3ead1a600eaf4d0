package profiles

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/oapi-codegen/nullable"
)

// ParseYear turns the raw JSON value of the year field into a tri-state.
// An absent field stays unspecified. Null, empty strings and anything that
// does not parse as an integer become null ("no year") instead of an error.
func ParseYear(raw json.RawMessage) nullable.Nullable[int] {
	var out nullable.Nullable[int]
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return out
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		out.SetNull()
		return out
	}

	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		out.SetNull()
		return out
	}

	year, err := strconv.Atoi(n.String())
	if err != nil {
		out.SetNull()
		return out
	}
	out.Set(year)
	return out
}

// NormalizeTags trims every entry, drops empties and removes duplicates
// while keeping the first occurrence of each value.
func NormalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// normalizePatch canonicalizes a patch before validation and storage.
// Null list fields become empty lists, a null bio becomes the empty string
// and a blank nickname clears the nickname.
func normalizePatch(p Patch) Patch {
	if p.Nickname.IsSpecified() && !p.Nickname.IsNull() {
		nick := strings.TrimSpace(p.Nickname.MustGet())
		if nick == "" {
			p.Nickname.SetNull()
		} else {
			p.Nickname.Set(nick)
		}
	}
	if p.Bio.IsSpecified() && p.Bio.IsNull() {
		p.Bio.Set("")
	}
	p.Interests = normalizeTagField(p.Interests)
	p.Emojis = normalizeTagField(p.Emojis)
	return p
}

func normalizeTagField(f nullable.Nullable[[]string]) nullable.Nullable[[]string] {
	if !f.IsSpecified() {
		return f
	}
	if f.IsNull() {
		return nullable.NewNullableWithValue([]string{})
	}
	return nullable.NewNullableWithValue(NormalizeTags(f.MustGet()))
}
