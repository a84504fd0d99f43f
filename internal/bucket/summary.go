package bucket

import (
	"sort"
	"strings"
)

// Counts is a per-category tally.
type Counts struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
}

func newCounts() Counts {
	return Counts{ByCategory: map[string]int{}}
}

func (c *Counts) add(category string) {
	c.ByCategory[categoryKey(category)]++
	c.Total++
}

// Summary is a per-category breakdown of one week.
type Summary struct {
	Week int `json:"week"`
	Counts
}

// CategoryCount is one row of a sorted breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Summarize counts a week's records by uppercased category. Records without a
// category are counted under "UNKNOWN".
func (i *Index) Summarize(week int) Summary {
	s := Summary{Week: week, Counts: newCounts()}
	for _, inc := range i.buckets[week] {
		s.add(inc.Category)
	}
	return s
}

// Top returns up to n categories ordered by count, then name. A negative n
// returns every category.
func (c Counts) Top(n int) []CategoryCount {
	counts := make([]CategoryCount, 0, len(c.ByCategory))
	for cat, v := range c.ByCategory {
		counts = append(counts, CategoryCount{Category: cat, Count: v})
	}
	sort.Slice(counts, func(a, b int) bool {
		if counts[a].Count != counts[b].Count {
			return counts[a].Count > counts[b].Count
		}
		return counts[a].Category < counts[b].Category
	})
	if n >= 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

func categoryKey(category string) string {
	category = strings.ToUpper(strings.TrimSpace(category))
	if category == "" {
		return "UNKNOWN"
	}
	return category
}
