// Package symbol resolves shared prefixes among symbolic names, such as the
// enum value names of a schema, so that "MY_ENUM_ONE" can also be addressed
// as "ONE".
package symbol

import "strings"

// LongestCommonPrefix returns the token-wise common leading run of names,
// joined by delimiter and including the trailing delimiter, together with its
// length in bytes. The run never covers every token of the shortest name, so
// stripping it always leaves a non-empty remainder. An empty delimiter
// compares names character by character.
//
//	LongestCommonPrefix([]string{"MY_PREFIX_TWO", "MY_PREFIX_THREE"}, "_") // 10, "MY_PREFIX_"
func LongestCommonPrefix(names []string, delimiter string) (int, string) {
	if len(names) == 0 {
		return 0, ""
	}

	common := tokenize(names[0], delimiter)
	limit := len(common) - 1
	for _, name := range names[1:] {
		tokens := tokenize(name, delimiter)
		if n := len(tokens) - 1; n < limit {
			limit = n
		}
		n := 0
		for n < len(common) && n < len(tokens) && common[n] == tokens[n] {
			n++
		}
		common = common[:n]
	}
	if len(common) > limit {
		common = common[:max(limit, 0)]
	}
	if len(common) == 0 {
		return 0, ""
	}

	prefix := strings.Join(common, delimiter) + delimiter
	return len(prefix), prefix
}

func tokenize(name, delimiter string) []string {
	if delimiter == "" {
		return strings.Split(name, "")
	}
	return strings.Split(name, delimiter)
}

// Strip removes prefix from name when name is longer than prefix.
func Strip(name, prefix string) string {
	if prefix != "" && len(name) > len(prefix) && strings.HasPrefix(name, prefix) {
		return name[len(prefix):]
	}
	return name
}
