// Package profile folds resume facts into the canonical candidate record.
// Merge is pure: it never mutates its inputs and produces the same entries
// regardless of the order resumes arrive in.
package profile

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"talent-match/internal/cv"
	"talent-match/internal/identity"
	"talent-match/internal/storage"
)

// Merge returns a new record with facts and resume folded into base.
// A nil base starts a new active candidate.
func Merge(base *storage.CandidateRecord, f *cv.Facts, resume storage.ResumeRef, now time.Time) *storage.CandidateRecord {
	now = now.UTC()
	var out *storage.CandidateRecord
	if base == nil {
		out = &storage.CandidateRecord{
			ID:        uuid.NewString(),
			Status:    storage.StatusActive,
			CreatedAt: now,
		}
	} else {
		out = base.Clone()
	}

	if resume.Fingerprint != "" && !out.HasFingerprint(resume.Fingerprint) {
		out.Resumes = append(out.Resumes, resume)
	}

	for _, e := range f.Experience {
		out.Experience = mergeExperience(out.Experience, e)
	}
	for _, p := range f.Projects {
		out.Projects = mergeProject(out.Projects, p)
	}
	for _, e := range f.Education {
		out.Education = mergeEducation(out.Education, e)
	}
	sortEntries(out)

	setIfPresent(&out.Name, f.Name)
	setIfPresent(&out.Email, identity.NormalizeEmail(f.Email))
	setIfPresent(&out.Phone, f.Phone)
	setIfPresent(&out.Location, f.Location)
	out.IdentityKeys = unionKeys(out.IdentityKeys, identity.KeysFor(f))

	Recompute(out, now)
	Touch(out, now)
	return out
}

// Touch marks a write: updated_at moves strictly forward and the revision is bumped.
// updated_at is kept at microsecond precision, the finest every store holds.
func Touch(c *storage.CandidateRecord, now time.Time) {
	next := now.UTC().Truncate(time.Microsecond)
	if !c.UpdatedAt.IsZero() {
		if floor := c.UpdatedAt.Add(time.Microsecond); next.Before(floor) {
			next = floor
		}
	}
	c.UpdatedAt = next
	c.Revision++
}

func setIfPresent(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func unionKeys(a, b []storage.IdentityKey) []storage.IdentityKey {
	seen := make(map[storage.IdentityKey]bool)
	var out []storage.IdentityKey
	for _, k := range append(append([]storage.IdentityKey(nil), a...), b...) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func monthKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01")
}

func experienceKey(e storage.ExperienceEntry) string {
	return fmt.Sprintf("%s|%s|%s", identity.CompanyKey(e.Company), cv.Normalize(e.Title), monthKey(e.Start))
}

func projectKey(p storage.ProjectEntry) string {
	return fmt.Sprintf("%s|%s|%s", cv.Normalize(p.Name), cv.Normalize(p.Role), monthKey(p.Start))
}

func educationKey(e storage.EducationEntry) string {
	return fmt.Sprintf("%s|%s|%s", identity.CompanyKey(e.School), cv.Normalize(e.Degree), monthKey(e.Start))
}

func mergeExperience(list []storage.ExperienceEntry, e storage.ExperienceEntry) []storage.ExperienceEntry {
	key := experienceKey(e)
	for i := range list {
		if experienceKey(list[i]) == key {
			list[i].Company = pickDescription(list[i].Company, e.Company)
			list[i].Title = pickDescription(list[i].Title, e.Title)
			list[i].Description = pickDescription(list[i].Description, e.Description)
			list[i].Period = extendPeriod(list[i].Period, e.Period)
			list[i].Skills = cv.SortedSet(list[i].Skills, e.Skills)
			return list
		}
	}
	e.Skills = cv.SortedSet(e.Skills)
	e.Period = clonePeriod(e.Period)
	return append(list, e)
}

func mergeProject(list []storage.ProjectEntry, p storage.ProjectEntry) []storage.ProjectEntry {
	key := projectKey(p)
	for i := range list {
		if projectKey(list[i]) == key {
			list[i].Name = pickDescription(list[i].Name, p.Name)
			list[i].Role = pickDescription(list[i].Role, p.Role)
			list[i].Description = pickDescription(list[i].Description, p.Description)
			list[i].Period = extendPeriod(list[i].Period, p.Period)
			list[i].Skills = cv.SortedSet(list[i].Skills, p.Skills)
			return list
		}
	}
	p.Skills = cv.SortedSet(p.Skills)
	p.Period = clonePeriod(p.Period)
	return append(list, p)
}

func mergeEducation(list []storage.EducationEntry, e storage.EducationEntry) []storage.EducationEntry {
	key := educationKey(e)
	for i := range list {
		if educationKey(list[i]) == key {
			list[i].School = pickDescription(list[i].School, e.School)
			list[i].Degree = pickDescription(list[i].Degree, e.Degree)
			list[i].Description = pickDescription(list[i].Description, e.Description)
			list[i].Period = extendPeriod(list[i].Period, e.Period)
			list[i].Skills = cv.SortedSet(list[i].Skills, e.Skills)
			list[i].Field = pickDescription(list[i].Field, e.Field)
			return list
		}
	}
	e.Skills = cv.SortedSet(e.Skills)
	e.Period = clonePeriod(e.Period)
	return append(list, e)
}

// pickDescription prefers non-empty, then longer, then lexically greater text.
// Entries with equal keys may spell names differently; the same rule keeps
// the result independent of merge order.
func pickDescription(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case len(a) != len(b):
		if len(a) > len(b) {
			return a
		}
		return b
	case a >= b:
		return a
	default:
		return b
	}
}

// extendPeriod keeps the start and the later end. Current beats any end date.
func extendPeriod(a, b storage.Period) storage.Period {
	out := storage.Period{Start: a.Start}
	if a.Current || b.Current {
		out.Current = true
		return out
	}
	if a.End == nil && b.End == nil {
		return out
	}
	end := effectiveEnd(a)
	if e := effectiveEnd(b); e.After(end) {
		end = e
	}
	out.End = &end
	return out
}

func clonePeriod(p storage.Period) storage.Period {
	if p.End != nil {
		end := *p.End
		p.End = &end
	}
	return p
}

// effectiveEnd is the last month covered; a period without end covers its start month.
func effectiveEnd(p storage.Period) time.Time {
	if p.End != nil {
		return *p.End
	}
	return p.Start
}

func sortEntries(c *storage.CandidateRecord) {
	sort.SliceStable(c.Experience, func(i, j int) bool {
		a, b := c.Experience[i], c.Experience[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.After(b.Start)
		}
		return experienceKey(a) < experienceKey(b)
	})
	sort.SliceStable(c.Projects, func(i, j int) bool {
		a, b := c.Projects[i], c.Projects[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.After(b.Start)
		}
		return projectKey(a) < projectKey(b)
	})
	sort.SliceStable(c.Education, func(i, j int) bool {
		a, b := c.Education[i], c.Education[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.After(b.Start)
		}
		return educationKey(a) < educationKey(b)
	})
}

// Recompute derives the aggregate fields from the owned collections.
func Recompute(c *storage.CandidateRecord, now time.Time) {
	var skills [][]string
	for _, e := range c.Experience {
		skills = append(skills, e.Skills)
	}
	for _, p := range c.Projects {
		skills = append(skills, p.Skills)
	}
	for _, e := range c.Education {
		skills = append(skills, e.Skills)
	}
	for _, r := range c.Resumes {
		skills = append(skills, r.Skills)
	}
	c.Skills = cv.SortedSet(skills...)
	if c.Skills == nil {
		c.Skills = []string{}
	}

	c.YearsExperience = YearsOfExperience(c.Experience, now)
	c.CurrentTitle, c.CurrentCompany = currentRole(c.Experience)
	c.EducationLevel = HighestEducation(c.Education)
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// YearsOfExperience is the union of experience months divided by twelve,
// so overlapping roles count once. Current roles run until now.
func YearsOfExperience(entries []storage.ExperienceEntry, now time.Time) float64 {
	type span struct{ from, to int }
	spans := make([]span, 0, len(entries))
	for _, e := range entries {
		if e.Start.IsZero() {
			continue
		}
		from := monthIndex(e.Start)
		to := monthIndex(effectiveEnd(e.Period))
		if e.Current {
			to = monthIndex(now)
		}
		if to < from {
			continue
		}
		spans = append(spans, span{from, to})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })

	months := 0
	for i := 0; i < len(spans); {
		cur := spans[i]
		j := i + 1
		for ; j < len(spans) && spans[j].from <= cur.to+1; j++ {
			if spans[j].to > cur.to {
				cur.to = spans[j].to
			}
		}
		months += cur.to - cur.from + 1
		i = j
	}
	return math.Round(float64(months)/12*10) / 10
}

func currentRole(entries []storage.ExperienceEntry) (string, string) {
	var best *storage.ExperienceEntry
	for i := range entries {
		e := &entries[i]
		if !e.Current {
			continue
		}
		if best == nil || e.Start.After(best.Start) {
			best = e
		}
	}
	if best == nil {
		for i := range entries {
			e := &entries[i]
			if best == nil || effectiveEnd(e.Period).After(effectiveEnd(best.Period)) {
				best = e
			}
		}
	}
	if best == nil {
		return "", ""
	}
	return best.Title, best.Company
}

var degreeLevels = []struct {
	level  string
	tokens []string
}{
	{storage.EducationPhD, []string{"phd", "ph.d", "doctorate", "doctor", "dphil", "doctoral"}},
	{storage.EducationMaster, []string{"master", "masters", "msc", "m.sc", "ma", "mba", "meng", "ms", "mphil", "diplom"}},
	{storage.EducationBachelor, []string{"bachelor", "bachelors", "bsc", "b.sc", "ba", "beng", "bs", "btech", "licence"}},
	{storage.EducationAssociate, []string{"associate", "aas"}},
	{storage.EducationSecondary, []string{"high", "secondary", "abitur", "ged", "a-levels"}},
}

// EducationLevel classifies a degree title; unknown titles yield "".
func EducationLevel(degree string) string {
	tokens := make(map[string]bool)
	for _, t := range strings.FieldsFunc(strings.ToLower(degree), func(r rune) bool {
		return r == ' ' || r == ',' || r == '(' || r == ')' || r == '/'
	}) {
		tokens[strings.Trim(t, ".'’")] = true
		tokens[strings.TrimRight(t, ".'’s")] = true
	}
	for _, d := range degreeLevels {
		for _, t := range d.tokens {
			if tokens[t] {
				return d.level
			}
		}
	}
	return ""
}

// HighestEducation returns the highest level among the entries.
func HighestEducation(entries []storage.EducationEntry) string {
	best := ""
	for _, e := range entries {
		if l := EducationLevel(e.Degree); storage.EducationRank(l) > storage.EducationRank(best) {
			best = l
		}
	}
	return best
}
