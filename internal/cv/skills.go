package cv

import (
	"sort"
	"strings"
)

// skillAliases maps common spellings to the canonical skill token.
var skillAliases = map[string]string{
	"golang":   "go",
	"k8s":      "kubernetes",
	"js":       "javascript",
	"ts":       "typescript",
	"postgres": "postgresql",
	"psql":     "postgresql",
	"react.js": "react",
	"reactjs":  "react",
	"vue.js":   "vue",
	"vuejs":    "vue",
	"nodejs":   "node.js",
	"node":     "node.js",
	"mongo":    "mongodb",
	"ml":       "machine learning",
	"ci-cd":    "ci/cd",
	"cicd":     "ci/cd",
	"py":       "python",
	"tf":       "terraform",
	"elastic":  "elasticsearch",

	"amazon web services": "aws",
	"google cloud":        "gcp",
}

// skillLexicon is the set of canonical skills recognized in free text.
var skillLexicon = []string{
	"go", "python", "java", "javascript", "typescript", "rust", "scala", "kotlin", "swift",
	"ruby", "php", "c++", "c#", "c", "r", "sql", "html", "css",
	"react", "vue", "angular", "node.js", "django", "flask", "spring", "rails", "fastapi",
	"docker", "kubernetes", "helm", "terraform", "ansible", "linux", "git", "ci/cd",
	"postgresql", "mysql", "mongodb", "redis", "elasticsearch", "cassandra", "sqlite",
	"kafka", "rabbitmq", "grpc", "graphql", "rest", "microservices",
	"aws", "azure", "gcp", "spark", "hadoop", "airflow", "pytorch", "tensorflow",
	"machine learning", "data science", "devops", "nlp", "prometheus", "grafana",
}

var lexiconSet = func() map[string]bool {
	m := make(map[string]bool, len(skillLexicon))
	for _, s := range skillLexicon {
		m[s] = true
	}
	return m
}()

// NormalizeSkill returns the canonical token for a skill name.
func NormalizeSkill(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
	s = strings.Trim(s, ".,;:")
	if alias, ok := skillAliases[s]; ok {
		return alias
	}
	return s
}

// NormalizeSkills normalizes, dedups and sorts skill names.
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		out = append(out, NormalizeSkill(s))
	}
	return SortedSet(out)
}

// IsKnownSkill reports whether the canonical token is in the lexicon.
func IsKnownSkill(s string) bool {
	return lexiconSet[NormalizeSkill(s)]
}

// ExtractSkills finds lexicon skills mentioned in text, including multi-word
// skills and aliases. Single letter languages (c, r) are only taken from
// declared skill lists, never from prose.
func ExtractSkills(text string) []string {
	found := make(map[string]bool)
	for _, t := range Tokens(text) {
		if lexiconSet[t] && len(t) > 1 {
			found[t] = true
		}
	}

	padded := " " + Normalize(text) + " "
	for _, s := range skillLexicon {
		if strings.Contains(s, " ") && containsPhrase(padded, s) {
			found[s] = true
		}
	}
	for alias, canonical := range skillAliases {
		if strings.Contains(alias, " ") && containsPhrase(padded, alias) {
			found[canonical] = true
		}
	}

	out := make([]string, 0, len(found))
	for s := range found {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// containsPhrase matches phrase on word boundaries inside a space padded, normalized text.
func containsPhrase(padded, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(padded[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		if start > 0 && end < len(padded) && !tokenRune(rune(padded[start-1])) && !tokenRune(rune(padded[end])) {
			return true
		}
		idx = start + 1
	}
}
