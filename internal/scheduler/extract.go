package scheduler

import (
	"regexp"

	"github.com/kline-runner/runner/internal/coretypes"
)

var timeframeLiteral = regexp.MustCompile(`tf\s*:\s*"([^"]+)"`)

// extractTimeframes conservatively scans source for literal tf: "<interval>"
// occurrences — source is the project's generated artifact, decoded to its
// textual form before this runs, since the WASM module's data section
// still carries the literal strings the generating template wrote. Unknown
// or malformed matches are dropped rather than defaulted individually;
// default1m only applies when nothing at all was found, per spec.
func extractTimeframes(source string) []coretypes.Interval {
	matches := timeframeLiteral.FindAllStringSubmatch(source, -1)

	seen := make(map[coretypes.Interval]struct{})

	var out []coretypes.Interval

	for _, m := range matches {
		if len(m) != 2 {
			continue
		}

		tf := coretypes.Interval(m[1])
		if !tf.Valid() {
			continue
		}

		if _, dup := seen[tf]; dup {
			continue
		}

		seen[tf] = struct{}{}
		out = append(out, tf)
	}

	if len(out) == 0 {
		return []coretypes.Interval{coretypes.Interval1m}
	}

	return out
}
