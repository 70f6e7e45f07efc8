package identifier

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var leadingYearPattern = regexp.MustCompile(`^(\d{4})`)

// ExtractYear extracts the year from a date string. Handles "2024",
// "2024-01" and "2024-01-15" by taking the leading 4-digit run.
// Returns 0 if no year can be extracted.
func ExtractYear(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	m := leadingYearPattern.FindStringSubmatch(value)
	if m == nil {
		return 0
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return year
}

// NormalizeArtistName extracts the primary artist from multi-artist strings.
// "Justin Timberlake/50 Cent" -> "Justin Timberlake"
func NormalizeArtistName(name string) string {
	if name == "" {
		return name
	}
	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// GroupingKey returns the case-insensitive key used to bucket tracks by
// artist. "Afrojack" and "AFROJACK" share one key.
func GroupingKey(name string) string {
	return strings.ToLower(NormalizeArtistName(name))
}

var (
	whitespacePattern = regexp.MustCompile(`[\s_]+`)
	invalidKeyPattern = regexp.MustCompile(`[^A-Za-z0-9-]`)
	dashRunPattern    = regexp.MustCompile(`-+`)
)

// SanitizeStorageKey sanitizes a name for use as a storage key path
// segment. Only alphanumerics and dashes survive; runs of whitespace and
// underscores become a single dash. Returns fallback if nothing survives.
// Idempotent: sanitizing twice yields the same result as once.
func SanitizeStorageKey(name, fallback string) string {
	if name == "" {
		return fallback
	}
	s := whitespacePattern.ReplaceAllString(name, "-")
	s = invalidKeyPattern.ReplaceAllString(s, "")
	s = dashRunPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return fallback
	}
	return s
}

// Edition suffixes stripped by NormalizeAlbumEdition.
var editionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*deluxe\s*(version|edition)?\s*\)`),
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*special\s+edition\s*\)`),
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*expanded\s+edition\s*\)`),
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*remaster(ed)?\s*\)`),
	regexp.MustCompile(`(?i)\s*[.\-]?\s*\(\s*bonus\s+track(s)?\s*\)`),
	regexp.MustCompile(`(?i)\s*-\s*single\s*$`),
	regexp.MustCompile(`(?i)\s*-\s*ep\s*$`),
}

// NormalizeAlbumEdition strips edition suffixes from an album name so
// provider searches hit the canonical release:
//
//	"Hozier .( DeLuxe Version )" -> "Hozier"
//	"Abbey Road (Remastered)"    -> "Abbey Road"
//	"Reds - Single"              -> "Reds"
//
// If stripping would leave an empty string the original name is returned
// unchanged.
func NormalizeAlbumEdition(name string) string {
	normalized := name
	for _, p := range editionPatterns {
		normalized = p.ReplaceAllString(normalized, "")
	}
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return name
	}
	return normalized
}

// NameVariations generates ordered, deduplicated search variations for a
// name, to retry providers that are sensitive to punctuation:
//
//	"B.O.B"  -> ["B.O.B", "BOB", "B. O. B"]
//	"AC/DC"  -> ["AC/DC", "ACDC", "AC DC"]
func NameVariations(name string) []string {
	variations := []string{name}

	if noPeriods := strings.ReplaceAll(name, ".", ""); noPeriods != name && strings.TrimSpace(noPeriods) != "" {
		variations = append(variations, noPeriods)
	}
	if spaced := strings.TrimSpace(strings.ReplaceAll(name, ".", ". ")); spaced != name {
		variations = append(variations, spaced)
	}
	if noSlashes := strings.ReplaceAll(name, "/", ""); noSlashes != name && strings.TrimSpace(noSlashes) != "" {
		variations = append(variations, noSlashes)
	}
	if slashToSpace := strings.ReplaceAll(name, "/", " "); slashToSpace != name {
		variations = append(variations, slashToSpace)
	}

	seen := make(map[string]bool, len(variations))
	var unique []string
	for _, v := range variations {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}
	return unique
}

// NamesLooselyMatch reports whether a search result name plausibly matches
// the searched name. Case and punctuation differences are ignored
// ("B.O.B" matches "B.o.B"); very short normalized forms must match
// exactly so that noise like "A" does not match everything.
func NamesLooselyMatch(a, b string) bool {
	na := foldName(a)
	nb := foldName(b)

	if na == nb {
		return true
	}
	if len(na) >= 3 && len(nb) >= 3 {
		if strings.Contains(na, nb) || strings.Contains(nb, na) {
			return true
		}
	}
	return false
}

// foldName lowercases and strips everything but letters and digits.
func foldName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
