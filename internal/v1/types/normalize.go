package types

import "strings"

// foldTitle applies the case-folding used everywhere a title is compared
// against another title or a reserved word.
func foldTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// IsReservedTitle reports whether title (after folding) collides with a
// reserved column name.
func IsReservedTitle(title string) bool {
	_, ok := ReservedTitles[foldTitle(title)]
	return ok
}
