package search

import "strings"

// fuzzyDistance computes the minimum edit distance between the query and any
// substring of the candidate name. A prefix of the name can be skipped for
// free, so "standup" is distance 1 from "Monday standups". Comparison is
// case-insensitive.
func fuzzyDistance(name, query string) int {
	q := []rune(strings.ToLower(query))
	n := []rune(strings.ToLower(name))

	if len(q) == 0 {
		return 0
	}
	if len(n) == 0 {
		return len(q)
	}

	// Sellers variant of Levenshtein: row 0 is all zeros so the match can
	// begin at any position in the name.
	prev := make([]int, len(n)+1)
	cur := make([]int, len(n)+1)

	for i := 1; i <= len(q); i++ {
		cur[0] = i
		for j := 1; j <= len(n); j++ {
			cost := 1
			if q[i-1] == n[j-1] {
				cost = 0
			}
			cur[j] = min(
				prev[j]+1,      // delete from query
				cur[j-1]+1,     // insert into query
				prev[j-1]+cost, // substitute
			)
		}
		prev, cur = cur, prev
	}

	best := prev[0]
	for _, d := range prev[1:] {
		if d < best {
			best = d
		}
	}
	return best
}
