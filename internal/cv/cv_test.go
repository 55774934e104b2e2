package cv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"talent-match/internal/llm"
)

const sampleResume = `Jane Doe
jane.doe@example.com | +49 151 2345678 | Berlin

SUMMARY
Backend engineer who enjoys distributed systems.

SKILLS
Golang, K8s, Postgres; Docker

EXPERIENCE
Senior Backend Engineer | Acme Corp | 2020-01 - present
Built Go services on Kubernetes with PostgreSQL.
Software Engineer | Initech GmbH | 2016-03 - 2019-12
Maintained Python batch jobs.

PROJECTS
Talent Graph | Maintainer | 2021 - 2022
Graph search with Kafka and Redis.

EDUCATION
BSc Computer Science | TU Berlin | 2012 - 2016
`

func TestFingerprintIgnoresWhitespace(t *testing.T) {
	a := "Jane Doe\n\nGo   Kubernetes\r\n"
	b := "  jane doe go kubernetes"
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint("Jane Doe Go"))
}

func TestSplitSections(t *testing.T) {
	s := SplitSections(sampleResume)
	assert.Contains(t, s[SectionHeader], "Jane Doe")
	assert.Contains(t, s[SectionSkills], "Golang")
	assert.Contains(t, s[SectionExperience], "Acme Corp")
	assert.Contains(t, s[SectionProjects], "Talent Graph")
	assert.Contains(t, s[SectionEducation], "TU Berlin")
}

func TestRuleFacts(t *testing.T) {
	doc, err := NewParser().Extract("jane.txt", []byte(sampleResume), "")
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", doc.Contact.Name)
	assert.Equal(t, "jane.doe@example.com", doc.Contact.Email)
	assert.Equal(t, "+49 151 2345678", doc.Contact.Phone)
	assert.Equal(t, "Berlin", doc.Contact.Location)

	f := RuleFacts(doc)
	assert.Equal(t, MethodRules, f.Method)
	assert.Equal(t, []string{"docker", "go", "kubernetes", "postgresql"}, f.Skills)

	require.Len(t, f.Experience, 2)
	acme := f.Experience[0]
	assert.Equal(t, "Senior Backend Engineer", acme.Title)
	assert.Equal(t, "Acme Corp", acme.Company)
	assert.True(t, acme.Current)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), acme.Start)
	assert.Contains(t, acme.Skills, "kubernetes")
	assert.Contains(t, acme.Skills, "postgresql")

	initech := f.Experience[1]
	require.NotNil(t, initech.End)
	assert.Equal(t, time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC), *initech.End)
	assert.Contains(t, initech.Skills, "python")

	require.Len(t, f.Projects, 1)
	assert.Equal(t, "Talent Graph", f.Projects[0].Name)
	assert.Equal(t, []string{"kafka", "redis"}, f.Projects[0].Skills)

	require.Len(t, f.Education, 1)
	assert.Equal(t, "BSc", f.Education[0].Degree)
	assert.Equal(t, "Computer Science", f.Education[0].Field)
	assert.Equal(t, "TU Berlin", f.Education[0].School)
}

func TestParsePeriod(t *testing.T) {
	month := func(y int, m time.Month) time.Time { return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		in      string
		ok      bool
		start   time.Time
		end     *time.Time
		current bool
	}{
		{in: "2020-01 - present", ok: true, start: month(2020, 1), current: true},
		{in: "Jan 2018 to Mar 2019", ok: true, start: month(2018, 1), end: ptr(month(2019, 3))},
		{in: "2012–2016", ok: true, start: month(2012, 1), end: ptr(month(2016, 1))},
		{in: "(03/2015 - 11/2017)", ok: true, start: month(2015, 3), end: ptr(month(2017, 11))},
		{in: "2021-05", ok: true, start: month(2021, 5)},
		{in: "2019 - 2017", ok: false},
		{in: "present", ok: false},
		{in: "sometime", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, ok := ParsePeriod(tt.in)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.start, p.Start)
			assert.Equal(t, tt.end, p.End)
			assert.Equal(t, tt.current, p.Current)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestExtractionFailures(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{name: "unsupported", filename: "photo.png", data: []byte{0x89, 'P', 'N', 'G'}},
		{name: "corrupt pdf", filename: "cv.pdf", data: []byte("not a pdf")},
		{name: "corrupt docx", filename: "cv.docx", data: []byte("not a zip")},
		{name: "empty text", filename: "cv.txt", data: []byte("   \n ")},
		{name: "invalid utf8", filename: "cv.txt", data: []byte{0xff, 0xfe, 0xfd}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Extract(tt.filename, tt.data, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExtractionFailed)

			var xerr *ExtractionError
			require.True(t, errors.As(err, &xerr))
			assert.Equal(t, tt.filename, xerr.Filename)
		})
	}
}

func TestExtractSkills(t *testing.T) {
	got := ExtractSkills("Shipped Golang microservices on Amazon Web Services with machine learning pipelines in C.")
	assert.Equal(t, []string{"aws", "go", "machine learning", "microservices"}, got)
	assert.True(t, IsKnownSkill("K8s"))
	assert.False(t, IsKnownSkill("basket weaving"))
}

func TestTokensAndJaccard(t *testing.T) {
	a := TokenSet("Go engineer with Kubernetes and CI/CD")
	b := TokenSet("golang kubernetes engineer")
	assert.True(t, a["ci/cd"])
	assert.InDelta(t, 0.75, Jaccard(a, b), 1e-9)
	assert.Zero(t, Jaccard(a, nil))
}

type stubFacts struct {
	x   *llm.Extraction
	err error
}

func (s stubFacts) ExtractFacts(context.Context, string) (*llm.Extraction, error) {
	return s.x, s.err
}

func TestExtractorFallsBackToRules(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ex := NewExtractor(nil, stubFacts{err: errors.New("model offline")}, zap.New(core))

	f, err := ex.Extract(context.Background(), "jane.txt", []byte(sampleResume), "")
	require.NoError(t, err)
	assert.Equal(t, MethodRules, f.Method)
	assert.Equal(t, Fingerprint(sampleResume), f.Fingerprint)
	assert.Equal(t, KindTXT, f.FileKind)
	assert.Equal(t, int64(len(sampleResume)), f.SizeBytes)
	assert.Equal(t, 1, logs.FilterMessage("LLM extraction failed, using rules").Len())
}

func TestExtractorUsesModelOutput(t *testing.T) {
	x := &llm.Extraction{
		Candidate: llm.Candidate{Name: "Jane Q. Doe"},
		Skills:    []string{"Golang", "Rust"},
		Experience: []llm.Experience{
			{Company: "Acme Corp", Title: "Staff Engineer", Start: "2020-01", IsCurrent: true, Skills: []string{"k8s"}},
			{Company: "Nowhere", Title: "Dreamer", Start: "not a date"},
		},
	}
	ex := NewExtractor(nil, stubFacts{x: x}, zap.NewNop())

	f, err := ex.Extract(context.Background(), "jane.txt", []byte(sampleResume), KindTXT)
	require.NoError(t, err)
	assert.Equal(t, MethodLLM, f.Method)
	assert.Equal(t, "Jane Q. Doe", f.Name)
	assert.Equal(t, "jane.doe@example.com", f.Email, "missing model fields keep rule values")
	assert.Equal(t, []string{"go", "rust"}, f.Skills)
	require.Len(t, f.Experience, 1)
	assert.Equal(t, []string{"kubernetes"}, f.Experience[0].Skills)
	assert.Len(t, f.Education, 1, "empty model sections keep rule entries")
}
