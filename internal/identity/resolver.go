// Package identity decides whether an incoming resume belongs to a candidate
// that already exists.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"talent-match/internal/cv"
	"talent-match/internal/storage"
)

// ErrAmbiguousIdentity is returned by the pipeline when a resume matches more
// than one candidate and ambiguity is configured to reject.
var ErrAmbiguousIdentity = errors.New("ambiguous identity")

type Outcome string

const (
	MatchedExisting Outcome = "matched_existing"
	NoMatch         Outcome = "no_match"
)

type Rule string

const (
	RuleFingerprint Rule = "fingerprint"
	RuleEmail       Rule = "email"
	RulePhone       Rule = "phone"
	RuleName        Rule = "name_employer"
)

type Confidence string

const (
	ConfidenceCertain Confidence = "certain"
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceNone    Confidence = "none"
)

// Resolution is the outcome of resolving one resume.
type Resolution struct {
	Outcome     Outcome
	CandidateID string
	Rule        Rule
	Confidence  Confidence
	// Ambiguous lists the candidates a rule matched when it matched more than one.
	Ambiguous []string
}

func (r Resolution) Matched() bool { return r.Outcome == MatchedExisting }

// Same reports whether two resolutions point at the same place.
func (r Resolution) Same(o Resolution) bool {
	if r.Outcome != o.Outcome || r.CandidateID != o.CandidateID || len(r.Ambiguous) != len(o.Ambiguous) {
		return false
	}
	for i := range r.Ambiguous {
		if r.Ambiguous[i] != o.Ambiguous[i] {
			return false
		}
	}
	return true
}

type Resolver struct {
	log *zap.Logger
}

func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log.Named("identity")}
}

// Resolve applies the rules in priority order; the first rule with a hit wins.
func (r *Resolver) Resolve(ctx context.Context, reader storage.Reader, f *cv.Facts) (Resolution, error) {
	if f.Fingerprint != "" {
		id, err := reader.FindByFingerprint(ctx, f.Fingerprint)
		if err != nil {
			return Resolution{}, fmt.Errorf("lookup fingerprint: %w", err)
		}
		if id != "" {
			return matched(id, RuleFingerprint, ConfidenceCertain), nil
		}
	}

	if email := NormalizeEmail(f.Email); email != "" {
		res, hit, err := r.byKey(ctx, reader, storage.KeyEmail, email, RuleEmail)
		if err != nil || hit {
			return res, err
		}
	}

	if phone := NormalizePhone(f.Phone); phone != "" {
		res, hit, err := r.byKey(ctx, reader, storage.KeyPhone, phone, RulePhone)
		if err != nil || hit {
			return res, err
		}
	}

	if name := NameKey(f.Name); name != "" {
		res, hit, err := r.byNameAndEmployer(ctx, reader, name, f.Companies())
		if err != nil || hit {
			return res, err
		}
	}

	return Resolution{Outcome: NoMatch, Confidence: ConfidenceNone}, nil
}

func (r *Resolver) byKey(ctx context.Context, reader storage.Reader, kind, value string, rule Rule) (Resolution, bool, error) {
	ids, err := reader.FindByIdentityKey(ctx, kind, value)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("lookup %s: %w", kind, err)
	}
	switch len(ids) {
	case 0:
		return Resolution{}, false, nil
	case 1:
		return matched(ids[0], rule, ConfidenceHigh), true, nil
	default:
		r.log.Warn("ambiguous identity", zap.String("rule", string(rule)), zap.Strings("candidates", ids))
		return ambiguous(rule, ids), true, nil
	}
}

func (r *Resolver) byNameAndEmployer(ctx context.Context, reader storage.Reader, name string, companies []string) (Resolution, bool, error) {
	if len(companies) == 0 {
		return Resolution{}, false, nil
	}
	ids, err := reader.FindByIdentityKey(ctx, storage.KeyName, name)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("lookup name: %w", err)
	}

	var hits []string
	for _, id := range ids {
		c, err := reader.GetCandidate(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return Resolution{}, false, err
		}
		if sharesEmployer(c, companies) {
			hits = append(hits, id)
		}
	}
	switch len(hits) {
	case 0:
		return Resolution{}, false, nil
	case 1:
		return matched(hits[0], RuleName, ConfidenceMedium), true, nil
	default:
		r.log.Warn("ambiguous identity", zap.String("rule", string(RuleName)), zap.Strings("candidates", hits))
		return ambiguous(RuleName, hits), true, nil
	}
}

func sharesEmployer(c *storage.CandidateRecord, companies []string) bool {
	for _, e := range c.Experience {
		for _, company := range companies {
			if CompaniesOverlap(e.Company, company) {
				return true
			}
		}
	}
	return false
}

func matched(id string, rule Rule, conf Confidence) Resolution {
	return Resolution{Outcome: MatchedExisting, CandidateID: id, Rule: rule, Confidence: conf}
}

func ambiguous(rule Rule, ids []string) Resolution {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return Resolution{Outcome: NoMatch, Rule: rule, Confidence: ConfidenceNone, Ambiguous: sorted}
}
