// Package directory holds the member roster and its sorted views.
package directory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/jmerrifield20/roster/pkg/client"
)

// Order selects how the roster is sorted.
type Order string

const (
	// YearLatest sorts by year, newest first. Members without a year come last.
	YearLatest Order = "year-latest"
	// YearOldest sorts by year, oldest first. Members without a year come first.
	YearOldest Order = "year-oldest"
	// Name sorts by nickname, falling back to display name.
	Name Order = "name"
)

// DefaultOrder is used until SortBy is called.
const DefaultOrder = YearLatest

const (
	maxBadges        = 3
	maxInterestCards = 4
)

// ParseOrder validates s as an Order.
func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case YearLatest, YearOldest, Name:
		return o, nil
	case "":
		return DefaultOrder, nil
	}
	return "", fmt.Errorf("unknown sort order %q (want year-latest, year-oldest or name)", s)
}

// Fetcher loads the roster. *client.Client satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]client.Summary, error)
}

// Entry is one member as shown in the directory.
type Entry struct {
	client.Summary
}

// Label is the nickname when set, else the display name.
func (e Entry) Label() string {
	if e.Nickname != nil && *e.Nickname != "" {
		return *e.Nickname
	}
	return e.DisplayName
}

// Badges returns at most the first three emojis.
func (e Entry) Badges() []string {
	return head(e.Emojis, maxBadges)
}

// InterestCards returns at most the first four interests.
func (e Entry) InterestCards() []string {
	return head(e.Interests, maxInterestCards)
}

// YearLabel renders the year, or "N/A" when unset.
func (e Entry) YearLabel() string {
	if e.Year == nil {
		return "N/A"
	}
	return strconv.Itoa(*e.Year)
}

func head(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	return slices.Clone(s)
}

// Model holds the roster fetched for one directory view. Sorted views are
// derived on demand and never reorder the roster itself.
type Model struct {
	fetcher Fetcher
	lang    language.Tag

	mu     sync.RWMutex
	roster []client.Summary
	order  Order
	sorted []Entry
}

// New returns an empty Model that sorts names using the rules of lang.
func New(fetcher Fetcher, lang language.Tag) *Model {
	return &Model{fetcher: fetcher, lang: lang, order: DefaultOrder}
}

// Load fetches the roster, replacing any previous one.
func (m *Model) Load(ctx context.Context) error {
	roster, err := m.fetcher.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("load directory: %w", err)
	}
	m.SetRoster(roster)
	return nil
}

// SetRoster replaces the roster with a copy of roster.
func (m *Model) SetRoster(roster []client.Summary) {
	m.mu.Lock()
	m.roster = slices.Clone(roster)
	m.sorted = nil
	m.mu.Unlock()
}

// SortBy changes the ordering.
func (m *Model) SortBy(o Order) {
	m.mu.Lock()
	if o != m.order {
		m.order = o
		m.sorted = nil
	}
	m.mu.Unlock()
}

// Order returns the current ordering.
func (m *Model) Order() Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.order
}

// Len returns the number of members in the roster.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.roster)
}

// Entries returns the roster in the current order. The result is a copy.
func (m *Model) Entries() []Entry {
	m.mu.RLock()
	if m.sorted != nil {
		out := slices.Clone(m.sorted)
		m.mu.RUnlock()
		return out
	}
	roster, order := m.roster, m.order
	m.mu.RUnlock()

	sorted := Sort(roster, order, m.lang)

	m.mu.Lock()
	if m.order == order && sameBacking(m.roster, roster) {
		m.sorted = sorted
	}
	m.mu.Unlock()
	return slices.Clone(sorted)
}

func sameBacking(a, b []client.Summary) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// Sort returns the members of roster in the given order. It is stable and
// leaves roster untouched.
func Sort(roster []client.Summary, o Order, lang language.Tag) []Entry {
	out := make([]Entry, len(roster))
	for i, s := range roster {
		out[i] = Entry{Summary: s}
	}

	switch o {
	case YearOldest:
		slices.SortStableFunc(out, func(a, b Entry) int {
			return cmp.Compare(yearKey(a), yearKey(b))
		})
	case Name:
		col := collate.New(lang, collate.IgnoreCase)
		slices.SortStableFunc(out, func(a, b Entry) int {
			return col.CompareString(a.Label(), b.Label())
		})
	default:
		slices.SortStableFunc(out, func(a, b Entry) int {
			return cmp.Compare(yearKey(b), yearKey(a))
		})
	}
	return out
}

// yearKey places unset years below every real year.
func yearKey(e Entry) int {
	if e.Year == nil {
		return math.MinInt
	}
	return *e.Year
}
