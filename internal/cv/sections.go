package cv

import (
	"regexp"
	"strings"
)

// Canonical section names.
const (
	SectionHeader     = "header"
	SectionSummary    = "summary"
	SectionSkills     = "skills"
	SectionExperience = "experience"
	SectionProjects   = "projects"
	SectionEducation  = "education"
	SectionOther      = "other"
)

var headings = map[string]string{
	"SUMMARY":                 SectionSummary,
	"PROFILE":                 SectionSummary,
	"ABOUT":                   SectionSummary,
	"SKILLS":                  SectionSkills,
	"TECHNICAL SKILLS":        SectionSkills,
	"CORE SKILLS":             SectionSkills,
	"EXPERIENCE":              SectionExperience,
	"WORK EXPERIENCE":         SectionExperience,
	"PROFESSIONAL EXPERIENCE": SectionExperience,
	"EMPLOYMENT":              SectionExperience,
	"EMPLOYMENT HISTORY":      SectionExperience,
	"PROJECTS":                SectionProjects,
	"SELECTED PROJECTS":       SectionProjects,
	"EDUCATION":               SectionEducation,
	"CERTIFICATIONS":          SectionOther,
	"LANGUAGES":               SectionOther,
	"INTERESTS":               SectionOther,
	"CONTACT":                 SectionHeader,
}

// Sections maps canonical section names to their body text.
type Sections map[string]string

// SplitSections cuts text at known heading lines. Text before the first
// heading lands in the header section.
func SplitSections(text string) Sections {
	out := make(Sections)
	current := SectionHeader
	var b strings.Builder
	flush := func() {
		body := strings.TrimSpace(b.String())
		if body != "" {
			if prev, ok := out[current]; ok {
				body = prev + "\n" + body
			}
			out[current] = body
		}
		b.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		key := strings.ToUpper(strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line), ":")))
		if name, ok := headings[key]; ok {
			flush()
			current = name
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	flush()
	return out
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{5,}\d`)
	urlRe   = regexp.MustCompile(`(?i)(https?://|www\.|linkedin\.com|github\.com)`)
)

// parseContact reads name, email, phone and location from the header section.
func parseContact(text string, sections Sections) Contact {
	var c Contact
	if m := emailRe.FindString(text); m != "" {
		c.Email = m
	}

	header := sections[SectionHeader]
	for _, line := range strings.Split(header, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "location:") {
			c.Location = strings.TrimSpace(line[len("location:"):])
			continue
		}
		if c.Name == "" && !strings.ContainsAny(line, "@|:") && !hasDigit(line) {
			c.Name = line
			continue
		}
		for _, part := range splitContactLine(line) {
			switch {
			case emailRe.MatchString(part):
			case urlRe.MatchString(part):
			case c.Phone == "" && phoneRe.MatchString(part) && digitCount(part) >= 7:
				c.Phone = phoneRe.FindString(part)
			case c.Location == "" && !hasDigit(part) && part != c.Name && strings.ContainsAny(line, "|•·"):
				c.Location = part
			}
		}
	}
	return c
}

func splitContactLine(line string) []string {
	parts := strings.FieldsFunc(line, func(r rune) bool { return r == '|' || r == '•' || r == '·' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasDigit(s string) bool {
	return digitCount(s) > 0
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
