// Copyright (c) 2015, Arbo von Monkiewitsch All rights reserved.
// Use of this source code is governed by a BSD-style
// license.

// Package levenshtein calculates edit distances and picks the closest of
// several names, used for "did you mean" hints.
package levenshtein

// Context reuses its scratch column between calls. It is not safe for
// concurrent use.
type Context struct {
	column []int
}

func (ctx *Context) scratch(length int) []int {
	if cap(ctx.column) < length {
		ctx.column = make([]int, length)
	}

	return ctx.column[:length]
}

// Distance returns the minimum number of single rune insertions, deletions
// or substitutions turning a into b. It uses O(len(a)) space.
func (ctx *Context) Distance(a, b string) int {
	s1 := []rune(a)
	s2 := []rune(b)

	if len(s2) == 0 {
		return len(s1)
	}

	column := ctx.scratch(len(s1) + 1)
	for i := range column {
		column[i] = i
	}

	for col, r2 := range s2 {
		column[0] = col + 1
		diag := col

		for row, r1 := range s1 {
			above := column[row+1]

			cost := 1
			if r1 == r2 {
				cost = 0
			}

			column[row+1] = min(above+1, column[row]+1, diag+cost)
			diag = above
		}
	}

	return column[len(s1)]
}

// Distance is Context.Distance with a throwaway context.
func Distance(a, b string) int {
	var ctx Context

	return ctx.Distance(a, b)
}

// Closest returns the candidate nearest to target when its distance is at
// most maxDistance. Ties keep the earlier candidate.
func Closest(target string, candidates []string, maxDistance int) (string, bool) {
	var ctx Context

	best, bestDist := "", maxDistance+1

	for _, c := range candidates {
		d := ctx.Distance(target, c)
		if d < bestDist {
			best, bestDist = c, d
		}
	}

	return best, bestDist <= maxDistance
}
