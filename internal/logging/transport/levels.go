package transport

import "strings"

// npm-style ordering; lower is more severe.
var levelRank = map[string]int{
	"fatal":   0,
	"panic":   0,
	"dpanic":  0,
	"error":   0,
	"warn":    1,
	"warning": 1,
	"info":    2,
	"http":    3,
	"verbose": 4,
	"debug":   5,
	"silly":   6,
}

// KnownLevel reports whether level has a rank.
func KnownLevel(level string) bool {
	_, ok := levelRank[strings.ToLower(level)]
	return ok
}

// LevelEnabled reports whether an entry at level passes a transport whose
// minimum is min. Unknown entry levels always pass.
func LevelEnabled(min, level string) bool {
	entryRank, ok := levelRank[strings.ToLower(level)]
	if !ok {
		return true
	}
	minRank, ok := levelRank[strings.ToLower(min)]
	if !ok {
		minRank = levelRank["info"]
	}
	return entryRank <= minRank
}
