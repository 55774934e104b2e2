package profile

import (
	"fmt"
	"strings"

	"talent-match/internal/cv"
	"talent-match/internal/storage"
)

// ProfileText is the deterministic text embedded for a candidate. Contact
// details are left out so they never influence similarity.
func ProfileText(c *storage.CandidateRecord) string {
	var b strings.Builder
	if c.CurrentTitle != "" {
		fmt.Fprintf(&b, "Current role: %s", c.CurrentTitle)
		if c.CurrentCompany != "" {
			fmt.Fprintf(&b, " at %s", c.CurrentCompany)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Years of experience: %.1f\n", c.YearsExperience)
	if c.EducationLevel != "" {
		fmt.Fprintf(&b, "Education level: %s\n", c.EducationLevel)
	}
	if len(c.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(c.Skills, ", "))
	}

	if len(c.Experience) > 0 {
		b.WriteString("Experience:\n")
		for _, e := range c.Experience {
			fmt.Fprintf(&b, "- %s at %s (%s)", e.Title, e.Company, periodText(e.Period))
			writeDetail(&b, e.Description, e.Skills)
		}
	}
	if len(c.Projects) > 0 {
		b.WriteString("Projects:\n")
		for _, p := range c.Projects {
			fmt.Fprintf(&b, "- %s", p.Name)
			if p.Role != "" {
				fmt.Fprintf(&b, ", %s", p.Role)
			}
			writeDetail(&b, p.Description, p.Skills)
		}
	}
	if len(c.Education) > 0 {
		b.WriteString("Education:\n")
		for _, e := range c.Education {
			fmt.Fprintf(&b, "- %s", e.Degree)
			if e.Field != "" {
				fmt.Fprintf(&b, " in %s", e.Field)
			}
			fmt.Fprintf(&b, ", %s\n", e.School)
		}
	}
	return strings.TrimSpace(b.String())
}

func writeDetail(b *strings.Builder, description string, skills []string) {
	if description != "" {
		fmt.Fprintf(b, ": %s", description)
	}
	if len(skills) > 0 {
		fmt.Fprintf(b, " [%s]", strings.Join(skills, ", "))
	}
	b.WriteString("\n")
}

func periodText(p storage.Period) string {
	start := p.Start.Format("2006-01")
	switch {
	case p.Current:
		return start + " - present"
	case p.End != nil:
		return start + " - " + p.End.Format("2006-01")
	default:
		return start
	}
}

// Tokens are the keyword index terms of a candidate.
func Tokens(c *storage.CandidateRecord) []string {
	return cv.SortedSet(cv.Tokens(ProfileText(c)), c.Skills)
}
