// Package speed turns the throughput strings printed by ranking pages into
// comparable numbers.
package speed

import (
	"regexp"
	"strconv"
	"strings"
)

// speedPattern matches "<number><optional space><MB|KB>/s" at the start of the string.
var speedPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(MB|KB)/s`)

// Valid reports whether raw is a speed string Normalize understands.
func Valid(raw string) bool {
	return speedPattern.MatchString(strings.TrimSpace(raw))
}

// Normalize converts raw into kilobytes per second. MB is taken as 1024 KB.
// Malformed or empty input yields 0.
func Normalize(raw string) float64 {
	m := speedPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[2] == "MB" {
		return n * 1024
	}
	return n
}
