package uploads

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"no-break space", "Q3\u00a0report.pdf", "Q3 report.pdf"},
		{"narrow no-break space", "Q3\u202freport.pdf", "Q3 report.pdf"},
		{"en quad", "a\u2000b", "a b"},
		{"zero width space", "a\u200bb", "a b"},
		{"bom", "\ufeffnotes.txt", "notes.txt"},
		{"collapses runs", "a  \u00a0  b", "a b"},
		{"trims", "  padded.txt  ", "padded.txt"},
		{"mixed", " \u00a0final\u2003draft  (v2).docx ", "final draft (v2).docx"},
		{"empty", "", ""},
		{"only spaces", " \u00a0\u200b ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
