package cv

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"talent-match/internal/llm"
	"talent-match/internal/storage"
)

// Extraction methods.
const (
	MethodRules = "rules"
	MethodLLM   = "llm"
)

// Facts are the structured, normalized facts of one resume.
type Facts struct {
	Name     string
	Email    string
	Phone    string
	Location string

	// Skills declared by the resume itself (SKILLS section).
	Skills     []string
	Experience []storage.ExperienceEntry
	Projects   []storage.ProjectEntry
	Education  []storage.EducationEntry

	Text        string
	Fingerprint string
	FileKind    string
	Filename    string
	SizeBytes   int64
	Method      string
}

// Companies lists the employers named in the experience entries.
func (f *Facts) Companies() []string {
	out := make([]string, 0, len(f.Experience))
	for _, e := range f.Experience {
		if e.Company != "" {
			out = append(out, e.Company)
		}
	}
	return out
}

// FactExtractor turns resume text into a structured extraction. llm.Service implements it.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, text string) (*llm.Extraction, error)
}

type Extractor struct {
	parser *Parser
	llm    FactExtractor
	log    *zap.Logger
}

// NewExtractor builds an extractor. A nil FactExtractor means rules only.
func NewExtractor(parser *Parser, fx FactExtractor, log *zap.Logger) *Extractor {
	if parser == nil {
		parser = NewParser()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{parser: parser, llm: fx, log: log.Named("extractor")}
}

// Extract reads the document and returns its facts. LLM failures fall back
// to the rule based extraction; only unreadable documents fail.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte, fileKind string) (*Facts, error) {
	if fileKind == "" {
		fileKind = KindFromFilename(filename)
	}
	doc, err := e.parser.Extract(filename, data, fileKind)
	if err != nil {
		return nil, err
	}

	facts := RuleFacts(doc)
	if e.llm != nil {
		x, err := e.llm.ExtractFacts(ctx, doc.Text)
		if err != nil {
			e.log.Warn("LLM extraction failed, using rules",
				zap.String("filename", filename), zap.Error(err))
		} else {
			facts = mergeExtraction(facts, x)
		}
	}

	facts.Text = doc.Text
	facts.Fingerprint = Fingerprint(doc.Text)
	facts.FileKind = fileKind
	facts.Filename = filename
	facts.SizeBytes = int64(len(data))

	e.log.Debug("extracted",
		zap.String("filename", filename),
		zap.String("method", facts.Method),
		zap.Int("skills", len(facts.Skills)),
		zap.Int("experience", len(facts.Experience)))
	return facts, nil
}

// mergeExtraction prefers the model output and keeps rule values it left empty.
func mergeExtraction(rules *Facts, x *llm.Extraction) *Facts {
	f := &Facts{
		Name:     firstNonEmpty(x.Candidate.Name, rules.Name),
		Email:    firstNonEmpty(x.Candidate.Email, rules.Email),
		Phone:    firstNonEmpty(x.Candidate.Phone, rules.Phone),
		Location: firstNonEmpty(x.Candidate.Location, rules.Location),
		Skills:   NormalizeSkills(x.Skills),
		Method:   MethodLLM,
	}
	if len(f.Skills) == 0 {
		f.Skills = rules.Skills
	}

	for _, ex := range x.Experience {
		p, ok := periodFrom(ex.Start, ex.End, ex.IsCurrent)
		if !ok || (ex.Company == "" && ex.Title == "") {
			continue
		}
		f.Experience = append(f.Experience, storage.ExperienceEntry{
			Company:     strings.TrimSpace(ex.Company),
			Title:       strings.TrimSpace(ex.Title),
			Description: strings.TrimSpace(ex.Description),
			Skills:      SortedSet(NormalizeSkills(ex.Skills), ExtractSkills(ex.Title+" "+ex.Description)),
			Period:      p,
		})
	}
	for _, pr := range x.Projects {
		p, ok := periodFrom(pr.Start, pr.End, pr.IsCurrent)
		if !ok || pr.Name == "" {
			continue
		}
		f.Projects = append(f.Projects, storage.ProjectEntry{
			Name:        strings.TrimSpace(pr.Name),
			Role:        strings.TrimSpace(pr.Role),
			Description: strings.TrimSpace(pr.Description),
			Skills:      SortedSet(NormalizeSkills(pr.Skills), ExtractSkills(pr.Description)),
			Period:      p,
		})
	}
	for _, ed := range x.Education {
		p, ok := periodFrom(ed.Start, ed.End, false)
		if !ok || ed.Institution == "" {
			continue
		}
		f.Education = append(f.Education, storage.EducationEntry{
			School: strings.TrimSpace(ed.Institution),
			Degree: strings.TrimSpace(ed.Degree),
			Field:  strings.TrimSpace(ed.Field),
			Skills: ExtractSkills(ed.Field),
			Period: p,
		})
	}

	if len(f.Experience) == 0 {
		f.Experience = rules.Experience
	}
	if len(f.Projects) == 0 {
		f.Projects = rules.Projects
	}
	if len(f.Education) == 0 {
		f.Education = rules.Education
	}
	return f
}

func periodFrom(start, end string, current bool) (storage.Period, bool) {
	s, _, ok := ParseMonth(start)
	if !ok || s.IsZero() {
		return storage.Period{}, false
	}
	p := storage.Period{Start: s, Current: current}
	if current || end == "" {
		return p, true
	}
	e, present, ok := ParseMonth(end)
	switch {
	case !ok:
		return p, true
	case present:
		p.Current = true
	case !e.Before(s):
		p.End = &e
	}
	return p, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
