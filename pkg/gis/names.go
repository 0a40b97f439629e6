package gis

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// CleanCountryName transliterates a display name to ASCII and strips spaces,
// periods, and apostrophes. This is the filename convention shared with the
// external tools: "Côte d'Ivoire" → "CotedIvoire".
func CleanCountryName(name string) string {
	clean := unidecode.Unidecode(name)
	clean = strings.ReplaceAll(clean, " ", "")
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.ReplaceAll(clean, "'", "")
	return clean
}
