package knowledge

import (
	"regexp"
	"strings"
)

var (
	sectionHeaderPattern = regexp.MustCompile(`(?im)^(?:SECTION|CHAPTER|ARTICLE|PART)\s+\d+[^\n]*`)
	citationPattern      = regexp.MustCompile(`\d+\s+U\.S\.C\.?\s+§?\s*\d+|\d+\s+C\.?F\.?R\.?\s+(?:§\s*)?\d+(?:\.\d+)?|\d+\s+Fed\.\s*Reg\.\s+\d+`)
	datePattern          = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b`)
	caseNamePattern      = regexp.MustCompile(`\b(?:[A-Z][A-Za-z]+\s+)?[A-Z][A-Za-z]+\s+v\.\s+[A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)?\b`)
	whitespacePattern    = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesPattern    = regexp.MustCompile(`\n{3,}`)
	sectionSignPattern   = regexp.MustCompile(`§\s*(\d+)`)
)

// ExtractMetadata pulls citations, case names, dates and the leading section
// header out of text. Results are de-duplicated in order of appearance.
func ExtractMetadata(text string) Metadata {
	md := Metadata{
		Citations: unique(citationPattern.FindAllString(text, -1)),
		CaseNames: unique(caseNamePattern.FindAllString(text, -1)),
		Dates:     unique(datePattern.FindAllString(text, -1)),
	}
	if h := sectionHeaderPattern.FindString(text); h != "" {
		md.SectionHeader = strings.TrimSpace(h)
	}
	return md
}

func unique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// CleanText normalizes whitespace and quotes while keeping paragraph breaks.
// Citation section signs inside statutes ("42 U.S.C. § 1983") are kept; a
// bare "§ 5" becomes "Section 5".
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`,
		"‘", "'", "’", "'", "‚", "'",
		"\u00a0", " ",
	).Replace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")
	text = replaceBareSectionSigns(text)
	return strings.TrimSpace(text)
}

func replaceBareSectionSigns(text string) string {
	locs := sectionSignPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		prefix := strings.TrimRight(text[:loc[0]], " ")
		if strings.HasSuffix(prefix, "U.S.C.") || strings.HasSuffix(prefix, "U.S.C") || strings.HasSuffix(prefix, "CFR") || strings.HasSuffix(prefix, "C.F.R.") {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString("Section ")
		b.WriteString(text[loc[2]:loc[3]])
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

var documentTypes = []struct {
	name         string
	titleTerms   []string
	contentTerms []string
}{
	{"Constitution", []string{"constitution", "const"}, []string{"constitution", "constitutional"}},
	{"Criminal Law", []string{"criminal", "penal"}, []string{"criminal code", "penal code"}},
	{"Civil Law", []string{"civil"}, []string{"civil code", "civil law"}},
	{"Contract Law", []string{"contract", "agreement"}, nil},
	{"Employment Law", []string{"employment", "labor"}, nil},
	{"Intellectual Property", []string{"copyright", "intellectual"}, nil},
	{"Arbitration Law", []string{"arbitration"}, nil},
}

// IdentifyDocumentType classifies by title first, then by content.
func IdentifyDocumentType(title, text string) string {
	title = strings.ToLower(title)
	for _, dt := range documentTypes {
		if containsAny(title, dt.titleTerms) {
			return dt.name
		}
	}
	text = strings.ToLower(text)
	for _, dt := range documentTypes {
		if containsAny(text, dt.contentTerms) {
			return dt.name
		}
	}
	return "General Legal Document"
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
