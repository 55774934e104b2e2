package cv

import (
	"regexp"
	"strings"
	"time"

	"talent-match/internal/storage"
)

// Resumes are read in the plain layout most exports produce:
//
//	Jane Doe
//	jane@example.com | +49 151 2345678 | Berlin
//
//	SKILLS
//	Go, Kubernetes, PostgreSQL
//
//	EXPERIENCE
//	Senior Backend Engineer | Acme Corp | 2020-01 - present
//	Built Go services on Kubernetes.
//
// Entry headers in EXPERIENCE, PROJECTS and EDUCATION are pipe separated:
// "title | company | dates", "name | role | dates" and "degree | school | dates".

var monthLayouts = []string{
	"2006-01", "2006/01", "01/2006", "1/2006", "01.2006", "Jan 2006", "January 2006", "Jan. 2006", "2006",
}

var yearRangeRe = regexp.MustCompile(`^(\d{4})\s*[-–—]\s*(\d{4}|present|current|now)$`)

// ParseMonth parses a month precision date. The boolean reports "present".
func ParseMonth(s string) (time.Time, bool, bool) {
	s = strings.TrimSpace(strings.Trim(s, "()"))
	switch strings.ToLower(s) {
	case "present", "current", "now", "today", "ongoing":
		return time.Time{}, true, true
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), false, true
		}
	}
	return time.Time{}, false, false
}

// ParsePeriod parses "start - end" ranges. A single date is a one month period.
func ParsePeriod(s string) (storage.Period, bool) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "()"))
	s = strings.NewReplacer("–", "-", "—", "-").Replace(s)

	var startStr, endStr string
	if m := yearRangeRe.FindStringSubmatch(strings.ToLower(s)); m != nil {
		startStr, endStr = m[1], m[2]
	} else if i := strings.Index(s, " - "); i >= 0 {
		startStr, endStr = s[:i], s[i+3:]
	} else if i := strings.Index(strings.ToLower(s), " to "); i >= 0 {
		startStr, endStr = s[:i], s[i+4:]
	} else {
		startStr = s
	}

	start, current, ok := ParseMonth(startStr)
	if !ok || current {
		return storage.Period{}, false
	}
	p := storage.Period{Start: start}
	if endStr == "" {
		return p, true
	}
	end, current, ok := ParseMonth(endStr)
	if !ok {
		return storage.Period{}, false
	}
	if current {
		p.Current = true
		return p, true
	}
	if end.Before(start) {
		return storage.Period{}, false
	}
	p.End = &end
	return p, true
}

type rawEntry struct {
	first, second string
	period        storage.Period
	description   []string
}

// parseEntries reads pipe separated headers followed by description lines.
func parseEntries(body string) []rawEntry {
	var out []rawEntry
	var cur *rawEntry
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if e, ok := parseEntryHeader(line); ok {
			out = append(out, e)
			cur = &out[len(out)-1]
			continue
		}
		if cur == nil {
			continue
		}
		cur.description = append(cur.description, strings.TrimSpace(strings.TrimLeft(line, "-*•·")))
	}
	return out
}

func parseEntryHeader(line string) (rawEntry, bool) {
	if !strings.Contains(line, "|") {
		return rawEntry{}, false
	}
	var e rawEntry
	var names []string
	found := false
	for _, part := range strings.Split(line, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !found {
			if p, ok := ParsePeriod(part); ok {
				e.period = p
				found = true
				continue
			}
		}
		names = append(names, part)
	}
	if !found || len(names) == 0 {
		return rawEntry{}, false
	}
	e.first = names[0]
	if len(names) > 1 {
		e.second = names[1]
	}
	return e, true
}

func (e rawEntry) text() string {
	return strings.Join(e.description, " ")
}

func (e rawEntry) skills() []string {
	return ExtractSkills(e.first + " " + e.second + " " + e.text())
}

// splitSkillList splits a declared skills section into canonical tokens.
func splitSkillList(body string) []string {
	parts := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '•' || r == '·' || r == '\n'
	})
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(p), "-*"))
		if i := strings.Index(p, ":"); i >= 0 {
			// "Languages: Go" style group labels.
			p = strings.TrimSpace(p[i+1:])
		}
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return NormalizeSkills(out)
}

// RuleFacts builds structured facts from a parsed document without an LLM.
func RuleFacts(doc *Document) *Facts {
	f := &Facts{
		Name:     doc.Contact.Name,
		Email:    doc.Contact.Email,
		Phone:    doc.Contact.Phone,
		Location: doc.Contact.Location,
		Method:   MethodRules,
	}

	if body, ok := doc.Sections[SectionSkills]; ok {
		f.Skills = splitSkillList(body)
	} else {
		f.Skills = ExtractSkills(doc.Text)
	}

	for _, e := range parseEntries(doc.Sections[SectionExperience]) {
		f.Experience = append(f.Experience, storage.ExperienceEntry{
			Title:       e.first,
			Company:     e.second,
			Description: e.text(),
			Skills:      e.skills(),
			Period:      e.period,
		})
	}
	for _, e := range parseEntries(doc.Sections[SectionProjects]) {
		f.Projects = append(f.Projects, storage.ProjectEntry{
			Name:        e.first,
			Role:        e.second,
			Description: e.text(),
			Skills:      e.skills(),
			Period:      e.period,
		})
	}
	for _, e := range parseEntries(doc.Sections[SectionEducation]) {
		degree, field := splitDegree(e.first)
		f.Education = append(f.Education, storage.EducationEntry{
			Degree:      degree,
			Field:       field,
			School:      e.second,
			Description: e.text(),
			Skills:      e.skills(),
			Period:      e.period,
		})
	}
	return f
}

// splitDegree separates "BSc Computer Science" or "Master of Science in Physics".
func splitDegree(s string) (string, string) {
	lower := strings.ToLower(s)
	if i := strings.Index(lower, " in "); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+4:])
	}
	fields := strings.Fields(s)
	if len(fields) > 1 && len(fields[0]) <= 5 {
		return fields[0], strings.Join(fields[1:], " ")
	}
	return s, ""
}
