package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"talent-match/internal/cv"
	"talent-match/internal/storage"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct{ in, region, want string }{
		{"+49 (0)151 234-5678", "", "491512345678"},
		{"+49 151 2345678", "US", "491512345678"},
		{"0049 151 2345678", "", "491512345678"},
		{"0151 2345678", "", "1512345678"},
		{"(555) 123-4567", "", "5551234567"},
		{"(202) 555-0147", "US", "12025550147"},
		{"12-34", "US", ""},
		{"", "DE", ""},
	}
	for _, tt := range tests {
		t.Run(tt.region+" "+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhoneIn(tt.in, tt.region))
		})
	}
}

func TestNormalizePhoneNationalAndInternationalFormsAgree(t *testing.T) {
	forms := []string{"+49 30 1234567", "030 1234567", "0049 30 123 45 67", "+49 (0)30 1234567"}
	for _, f := range forms {
		assert.Equal(t, "49301234567", NormalizePhoneIn(f, "DE"), f)
	}
	assert.Equal(t, "3903312345678", NormalizePhoneIn("0331 2345678", "IT"), "Italian numbers keep the leading zero")
}

func TestResolveByPhoneInDefaultRegion(t *testing.T) {
	require.NoError(t, SetDefaultRegion("de"))
	t.Cleanup(func() { _ = SetDefaultRegion("") })
	assert.Error(t, SetDefaultRegion("XX"))

	store := storage.NewMemoryStore()
	seed(t, store, record("jana", "Jana Novak", "jana@example.com", "+49 30 1234567", "fp-jana", ""))

	res, err := NewResolver(zap.NewNop()).Resolve(context.Background(), store,
		&cv.Facts{Fingerprint: "new", Email: "jana.novak@example.org", Phone: "030 123 4567"})
	require.NoError(t, err)
	assert.Equal(t, MatchedExisting, res.Outcome)
	assert.Equal(t, "jana", res.CandidateID)
	assert.Equal(t, RulePhone, res.Rule)
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, "doe jose", NameKey("José Doe"))
	assert.Equal(t, NameKey("Doe, José"), NameKey("jose  DOE"))
	assert.Equal(t, "", NameKey("Madonna"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeEmail("  Jane@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("not-an-email"))
	assert.Equal(t, "", NormalizeEmail("jane@"))
}

func TestCompaniesOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Acme Corp", "ACME Corporation", true},
		{"Initech GmbH", "Initech", true},
		{"Acme Cloud Services", "Acme Labs", true},
		{"Global Software Solutions", "Global Consulting Group", false},
		{"Umbrella", "Initech", false},
		{"", "Initech", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompaniesOverlap(tt.a, tt.b))
		})
	}
}

var now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *storage.MemoryStore, recs ...*storage.CandidateRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.InTx(ctx, func(tx storage.Tx) error {
		for _, c := range recs {
			c.Revision = 1
			c.Status = storage.StatusActive
			c.CreatedAt, c.UpdatedAt = now, now
			if err := tx.SaveCandidate(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}))
}

func record(id, name, email, phone, fingerprint, company string) *storage.CandidateRecord {
	c := &storage.CandidateRecord{ID: id, Name: name}
	c.IdentityKeys = KeysFor(&cv.Facts{Name: name, Email: email, Phone: phone})
	if fingerprint != "" {
		c.Resumes = []storage.ResumeRef{{ID: id + "-r", Fingerprint: fingerprint}}
	}
	if company != "" {
		c.Experience = []storage.ExperienceEntry{{Company: company, Title: "Engineer"}}
	}
	return c
}

func TestResolveRules(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store,
		record("alice", "Alice Smith", "alice@example.com", "+1 555 123 4567", "fp-alice", "Acme Corp"),
		record("bob", "Bob Jones", "bob@example.com", "", "fp-bob", "Initech"),
		record("dup1", "Sam Lee", "shared@example.com", "", "", "Umbrella"),
		record("dup2", "Sam Lee", "shared@example.com", "", "", "Umbrella Corp"),
	)
	r := NewResolver(zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name      string
		facts     cv.Facts
		outcome   Outcome
		id        string
		rule      Rule
		conf      Confidence
		ambiguous []string
	}{
		{
			name:    "fingerprint wins over other keys",
			facts:   cv.Facts{Fingerprint: "fp-alice", Email: "bob@example.com"},
			outcome: MatchedExisting, id: "alice", rule: RuleFingerprint, conf: ConfidenceCertain,
		},
		{
			name:    "email",
			facts:   cv.Facts{Fingerprint: "new", Email: "BOB@example.com "},
			outcome: MatchedExisting, id: "bob", rule: RuleEmail, conf: ConfidenceHigh,
		},
		{
			name:    "phone",
			facts:   cv.Facts{Fingerprint: "new", Email: "alice.new@example.com", Phone: "+1 (555) 123-4567"},
			outcome: MatchedExisting, id: "alice", rule: RulePhone, conf: ConfidenceHigh,
		},
		{
			name: "name with employer overlap",
			facts: cv.Facts{Fingerprint: "new", Name: "smith alice",
				Experience: []storage.ExperienceEntry{{Company: "ACME Corporation"}}},
			outcome: MatchedExisting, id: "alice", rule: RuleName, conf: ConfidenceMedium,
		},
		{
			name: "name without employer overlap",
			facts: cv.Facts{Fingerprint: "new", Name: "Alice Smith",
				Experience: []storage.ExperienceEntry{{Company: "Globex"}}},
			outcome: NoMatch, conf: ConfidenceNone,
		},
		{
			name:    "name alone never matches",
			facts:   cv.Facts{Fingerprint: "new", Name: "Alice Smith"},
			outcome: NoMatch, conf: ConfidenceNone,
		},
		{
			name:    "shared email is ambiguous",
			facts:   cv.Facts{Fingerprint: "new", Email: "shared@example.com", Phone: "+1 555 123 4567"},
			outcome: NoMatch, rule: RuleEmail, conf: ConfidenceNone, ambiguous: []string{"dup1", "dup2"},
		},
		{
			name: "shared name and employer is ambiguous",
			facts: cv.Facts{Fingerprint: "new", Name: "Sam Lee",
				Experience: []storage.ExperienceEntry{{Company: "Umbrella"}}},
			outcome: NoMatch, rule: RuleName, conf: ConfidenceNone, ambiguous: []string{"dup1", "dup2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(ctx, store, &tt.facts)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.id, res.CandidateID)
			assert.Equal(t, tt.rule, res.Rule)
			assert.Equal(t, tt.conf, res.Confidence)
			assert.Equal(t, tt.ambiguous, res.Ambiguous)
		})
	}
}
