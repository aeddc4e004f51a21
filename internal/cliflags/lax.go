// Package cliflags implements an intentionally lax command-line parsing
// pass: unrecognised flags are silently skipped rather than rejected, so
// scripts invoking these binaries alongside other tools' flags do not need
// to filter them out first.
package cliflags

import "strings"

// Known describes one recognised flag: whether it consumes a following
// argument as its value (false for boolean switches).
type Known map[string]bool

// Filter rewrites args, dropping any flag not present in known, so the
// result can be handed to a standard flag.FlagSet without it erroring out
// on unrecognised input. An unknown flag never consumes the token after it
// — there is no way to tell whether it would have taken a value, and
// swallowing a positional by mistake is the worse failure of the two.
// Everything from the first non-flag token onward is treated as positional
// and passed through unchanged.
func Filter(args []string, known Known) []string {
	result := make([]string, 0, len(args))

	i := 0
	for i < len(args) {
		a := args[i]
		if !strings.HasPrefix(a, "-") || a == "-" {
			result = append(result, args[i:]...)
			break
		}

		name := strings.TrimLeft(a, "-")
		hasEq := false
		if idx := strings.IndexByte(name, '='); idx >= 0 {
			name = name[:idx]
			hasEq = true
		}

		takesValue, recognised := known[name]
		if !recognised {
			i++
			continue
		}

		result = append(result, a)
		i++
		if takesValue && !hasEq && i < len(args) {
			result = append(result, args[i])
			i++
		}
	}

	return result
}
