package editor

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jmerrifield20/roster/pkg/client"
)

// MaxBioLength is the bio bound in code points.
const MaxBioLength = 500

// MaxEmojiLength is the bound on one emoji badge in code points.
const MaxEmojiLength = 8

// Draft is the local working copy of the editable profile fields. Every
// field always holds a defined value; Year is kept as typed.
type Draft struct {
	Nickname  string
	Year      string
	Interests []string
	Bio       string
	Emojis    []string
}

// DraftFromProfile coerces a fetched profile into a Draft. Absent strings
// become "", an absent year becomes "" and absent lists become empty
// (non-nil) slices. A nil profile yields the empty Draft.
func DraftFromProfile(p *client.Profile) Draft {
	d := Draft{Interests: []string{}, Emojis: []string{}}
	if p == nil {
		return d
	}
	if p.Nickname != nil {
		d.Nickname = *p.Nickname
	}
	if p.Year != nil {
		d.Year = strconv.Itoa(*p.Year)
	}
	if p.Bio != nil {
		d.Bio = truncateRunes(*p.Bio, MaxBioLength)
	}
	d.Interests = dedup(p.Interests)
	d.Emojis = dedup(p.Emojis)
	return d
}

// Clone returns a deep copy of d.
func (d Draft) Clone() Draft {
	d.Interests = slices.Clone(d.Interests)
	d.Emojis = slices.Clone(d.Emojis)
	if d.Interests == nil {
		d.Interests = []string{}
	}
	if d.Emojis == nil {
		d.Emojis = []string{}
	}
	return d
}

// UpdateRequest builds the update payload. All five fields are always
// included; a year that does not parse as an integer is sent as null.
func (d Draft) UpdateRequest() client.UpdateRequest {
	var req client.UpdateRequest
	req.Nickname.Set(d.Nickname)
	if y, ok := ParseYear(d.Year); ok {
		req.Year.Set(y)
	} else {
		req.Year.SetNull()
	}
	req.Interests.Set(slices.Clone(d.Interests))
	req.Bio.Set(d.Bio)
	req.Emojis.Set(slices.Clone(d.Emojis))
	return req
}

// ParseYear parses a year typed by the member. Empty or non-numeric input
// reports false.
func ParseYear(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	y, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return y, true
}

// appendUnique trims s and appends it to list unless it is empty or
// already present.
func appendUnique(list []string, s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || slices.Contains(list, s) {
		return list, false
	}
	return append(list, s), true
}

// removeAt drops the element at position i. Out-of-range positions are
// ignored.
func removeAt(list []string, i int) ([]string, bool) {
	if i < 0 || i >= len(list) {
		return list, false
	}
	return slices.Delete(slices.Clone(list), i, i+1), true
}

func dedup(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out, _ = appendUnique(out, s)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func runeCount(s string) int { return utf8.RuneCountInString(s) }
