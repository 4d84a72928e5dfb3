package mysql

import "strings"

// escapeLikePattern escapes LIKE special characters so user input cannot
// widen a pattern match
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
