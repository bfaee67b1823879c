package uploads

import "strings"

// exoticSpace reports whether r is one of the Unicode space variants that
// filenames pasted from rich-text editors routinely carry: no-break space,
// narrow no-break space, the U+2000..U+200B range, and the BOM.
func exoticSpace(r rune) bool {
	switch r {
	case '\u00a0', '\u202f', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200b'
}

// SanitizeFilename replaces exotic Unicode spaces with ordinary spaces,
// collapses whitespace runs, and trims.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if exoticSpace(r) {
			b.WriteByte(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
