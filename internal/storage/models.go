package storage

import "time"

type CandidateStatus string

const (
	StatusActive   CandidateStatus = "active"
	StatusArchived CandidateStatus = "archived"
)

// Identity key kinds.
const (
	KeyEmail = "email"
	KeyPhone = "phone"
	KeyName  = "name"
)

// Audit actions.
const (
	ActionCreate  = "create"
	ActionMerge   = "merge"
	ActionDelete  = "delete"
	ActionReindex = "reindex"
	ActionStatus  = "status"
)

// CandidateRecord is the canonical, merged view of one person.
// Derived fields (years, current role, skills, education level) are owned by the merger.
type CandidateRecord struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Email    string          `json:"email,omitempty"`
	Phone    string          `json:"phone,omitempty"`
	Location string          `json:"location,omitempty"`
	Status   CandidateStatus `json:"status"`

	YearsExperience float64  `json:"years_experience"`
	CurrentTitle    string   `json:"current_title,omitempty"`
	CurrentCompany  string   `json:"current_company,omitempty"`
	Skills          []string `json:"skills"`
	EducationLevel  string   `json:"education_level,omitempty"`

	IdentityKeys []IdentityKey     `json:"-"`
	Resumes      []ResumeRef       `json:"resumes"`
	Experience   []ExperienceEntry `json:"experience"`
	Projects     []ProjectEntry    `json:"projects"`
	Education    []EducationEntry  `json:"education"`

	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdentityKey is a normalized soft-unique lookup key (email, phone or name).
type IdentityKey struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// ResumeRef points at a stored resume artifact.
type ResumeRef struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Source      string    `json:"source"`
	FileKind    string    `json:"file_kind"`
	Filename    string    `json:"filename,omitempty"`
	URI         string    `json:"uri,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	Skills      []string  `json:"skills,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Period is a month precision date range. A nil End with Current unset means a single month.
type Period struct {
	Start   time.Time  `json:"start"`
	End     *time.Time `json:"end,omitempty"`
	Current bool       `json:"current"`
}

type ExperienceEntry struct {
	Company     string   `json:"company"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Period
}

type ProjectEntry struct {
	Name        string   `json:"name"`
	Role        string   `json:"role,omitempty"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Period
}

type EducationEntry struct {
	School      string   `json:"school"`
	Degree      string   `json:"degree"`
	Field       string   `json:"field,omitempty"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Period
}

// AuditEntry is append-only and references candidates by id only.
type AuditEntry struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Changes    map[string]any `json:"changes,omitempty"`
	Actor      string         `json:"actor"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ListFilter restricts ListCandidates. Zero values match everything.
type ListFilter struct {
	Status       CandidateStatus `json:"status,omitempty"`
	IDs          []string        `json:"ids,omitempty"`
	UpdatedSince *time.Time      `json:"updated_since,omitempty"`
}

// Pagination for list calls. Limit 0 means no limit.
type Pagination struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

type Stats struct {
	TotalCandidates  int `json:"total_candidates"`
	TotalResumes     int `json:"total_resumes"`
	ActiveCandidates int `json:"active_candidates"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (c *CandidateRecord) Clone() *CandidateRecord {
	if c == nil {
		return nil
	}
	out := *c
	out.Skills = append([]string(nil), c.Skills...)
	out.IdentityKeys = append([]IdentityKey(nil), c.IdentityKeys...)
	out.Resumes = make([]ResumeRef, len(c.Resumes))
	for i, r := range c.Resumes {
		r.Skills = append([]string(nil), r.Skills...)
		out.Resumes[i] = r
	}
	out.Experience = make([]ExperienceEntry, len(c.Experience))
	for i, e := range c.Experience {
		e.Skills = append([]string(nil), e.Skills...)
		e.Period = e.Period.clone()
		out.Experience[i] = e
	}
	out.Projects = make([]ProjectEntry, len(c.Projects))
	for i, p := range c.Projects {
		p.Skills = append([]string(nil), p.Skills...)
		p.Period = p.Period.clone()
		out.Projects[i] = p
	}
	out.Education = make([]EducationEntry, len(c.Education))
	for i, e := range c.Education {
		e.Skills = append([]string(nil), e.Skills...)
		e.Period = e.Period.clone()
		out.Education[i] = e
	}
	return &out
}

func (p Period) clone() Period {
	if p.End != nil {
		end := *p.End
		p.End = &end
	}
	return p
}

// HasFingerprint reports whether a resume with this fingerprint is attached.
func (c *CandidateRecord) HasFingerprint(fp string) bool {
	for _, r := range c.Resumes {
		if r.Fingerprint == fp {
			return true
		}
	}
	return false
}

// ResumeByFingerprint returns the attached resume with this fingerprint.
func (c *CandidateRecord) ResumeByFingerprint(fp string) (ResumeRef, bool) {
	for _, r := range c.Resumes {
		if r.Fingerprint == fp {
			return r, true
		}
	}
	return ResumeRef{}, false
}

// Matches reports whether c satisfies the filter.
func (f ListFilter) Matches(c *CandidateRecord) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.UpdatedSince != nil && c.UpdatedAt.Before(*f.UpdatedSince) {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == c.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Education levels, lowest to highest.
const (
	EducationSecondary = "secondary"
	EducationAssociate = "associate"
	EducationBachelor  = "bachelor"
	EducationMaster    = "master"
	EducationPhD       = "phd"
)

var educationRank = map[string]int{
	EducationSecondary: 1,
	EducationAssociate: 2,
	EducationBachelor:  3,
	EducationMaster:    4,
	EducationPhD:       5,
}

// EducationRank orders education levels; unknown levels rank 0.
func EducationRank(level string) int {
	return educationRank[level]
}
