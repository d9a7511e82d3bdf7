package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid top-level keys in the config file.
var knownKeys = map[string]bool{
	"saves_dir": true, "backup_dir": true, "state_dir": true, "copy_static_files": true,
	"mode": true, "poll_interval": true, "safety_scan_interval": true,
	"mtime_tolerance": true, "watch_debounce": true, "check_workers": true,
	"min_free_space": true, "failure_threshold": true, "failure_cooldown": true,
	"log_level": true, "log_file": true, "log_format": true, "log_retention_days": true,
}

// knownKeysList is knownKeys sorted, so equal-distance suggestions are
// deterministic.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys reports every undecoded key with a "did you mean?"
// suggestion where one is close enough.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		name := key[len(key)-1]

		if suggestion := closestMatch(name, knownKeysList); suggestion != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q, did you mean %q?", key.String(), suggestion))
			continue
		}

		errs = append(errs, fmt.Errorf("unknown config key %q", key.String()))
	}

	return errors.Join(errs...)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
