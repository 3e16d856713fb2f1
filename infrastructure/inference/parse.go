package inference

import (
	"regexp"
	"strconv"
)

var firstIntPattern = regexp.MustCompile(`-?\d+`)

// FirstInt returns the first integer that appears in s. A leading minus sign
// is kept so negative replies stay out of range.
func FirstInt(s string) (int, bool) {
	match := firstIntPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}
