// Package pricenlp extracts price constraints from natural-language shopping
// queries using regex patterns. No external dependencies.
//
// It understands phrasings like "under $10", "over 15 dollars", "between 5
// and 15", "microfiber cloths 5-10", "around $20", and budget words such as
// "cheap" or "premium". Matched price phrases are stripped from the query so
// the remainder can be embedded without the numeric noise.
package pricenlp

import (
	"regexp"
	"strconv"
	"strings"
)

// Constraints holds the numeric price bounds parsed out of a query.
// A nil field means the query did not constrain that side.
type Constraints struct {
	Min *float64
	Max *float64
}

// Empty reports whether no bound was found.
func (c Constraints) Empty() bool { return c.Min == nil && c.Max == nil }

const (
	numPat = `(?:\d{1,3}(?:,\d{3})*|\d+)(?:\.\d+)?`
	curPat = `(?:\$|usd|dollars?)`
	wsPat  = `[ \t]*`
)

// amtPat matches a number with an optional currency marker on either side,
// capturing only the number.
var amtPat = `(?:\$` + wsPat + `)?(` + numPat + `)(?:` + wsPat + curPat + `)?`

var (
	rangeRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:between|from)` + wsPat + amtPat + wsPat + `(?:and|to|-)` + wsPat + amtPat),
		regexp.MustCompile(amtPat + wsPat + `-` + wsPat + amtPat),
	}
	maxRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:under|below|at\s*most)` + wsPat + amtPat),
		regexp.MustCompile(`(?:<=|<)` + wsPat + amtPat),
		regexp.MustCompile(`(?:up\s*to)` + wsPat + amtPat),
	}
	minRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:over|above|at\s*least)` + wsPat + amtPat),
		regexp.MustCompile(`(?:>=|>)` + wsPat + amtPat),
	}
	approxRe  = regexp.MustCompile(`(?:around|about|approx(?:\.|imately)?)` + wsPat + amtPat)
	exactRe   = regexp.MustCompile(`exactly` + wsPat + amtPat)
	cheapRe   = regexp.MustCompile(`\b(?:cheap|inexpensive|budget)\b`)
	premiumRe = regexp.MustCompile(`\b(?:expensive|premium|high-end)\b`)
)

// Soft defaults applied for budget words when the query gives no explicit bound.
const (
	cheapMaxDefault   = 15.0
	premiumMinDefault = 100.0
)

func toFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return f
}

// tighten narrows existing bounds with new ones: the minimum only rises,
// the maximum only falls. Overlapping phrases therefore compose as an
// intersection.
func (c *Constraints) tighten(lo, hi *float64) {
	if lo != nil && (c.Min == nil || *lo > *c.Min) {
		v := *lo
		c.Min = &v
	}
	if hi != nil && (c.Max == nil || *hi < *c.Max) {
		v := *hi
		c.Max = &v
	}
}

// Extract parses price constraints out of q and returns the query with the
// price phrases removed plus the parsed bounds. If stripping removes
// everything, the original query is returned so there is always something
// to embed.
func Extract(q string) (string, Constraints) {
	original := q
	// Pad with spaces so phrase removal can't glue neighboring words together.
	s := " " + strings.ToLower(strings.TrimSpace(q)) + " "
	var c Constraints

	// between X and Y / from X to Y / X - Y
	for _, re := range rangeRes {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			a, b := toFloat(m[1]), toFloat(m[2])
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			c.tighten(&lo, &hi)
			s = strings.Replace(s, m[0], " ", 1)
		}
	}

	// under/below/at most/up to/<=
	for _, re := range maxRes {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			v := toFloat(m[1])
			c.tighten(nil, &v)
			s = strings.Replace(s, m[0], " ", 1)
		}
	}

	// over/above/at least/>=
	for _, re := range minRes {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			v := toFloat(m[1])
			c.tighten(&v, nil)
			s = strings.Replace(s, m[0], " ", 1)
		}
	}

	// around X -> narrow band of +/- 10%; exactly X -> point band.
	for _, m := range approxRe.FindAllStringSubmatch(s, -1) {
		v := toFloat(m[1])
		lo, hi := 0.9*v, 1.1*v
		c.tighten(&lo, &hi)
		s = strings.Replace(s, m[0], " ", 1)
	}
	for _, m := range exactRe.FindAllStringSubmatch(s, -1) {
		v := toFloat(m[1])
		c.tighten(&v, &v)
		s = strings.Replace(s, m[0], " ", 1)
	}

	// Budget words set soft defaults only when no explicit bound was given.
	if cheapRe.MatchString(s) {
		if c.Max == nil {
			v := cheapMaxDefault
			c.Max = &v
		}
		s = cheapRe.ReplaceAllString(s, " ")
	}
	if premiumRe.MatchString(s) {
		if c.Min == nil {
			v := premiumMinDefault
			c.Min = &v
		}
		s = premiumRe.ReplaceAllString(s, " ")
	}

	cleaned := strings.Join(strings.Fields(s), " ")
	if cleaned == "" {
		cleaned = original
	}
	return cleaned, c
}
