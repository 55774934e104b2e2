package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeExtractionLooseTypes(t *testing.T) {
	response := "```json\n" + `{
  "candidate": {"name": "Jane Doe", "email": "jane@example.com", "phone": 4915112345678},
  "skills": ["Go", {"skill": "Kubernetes", "proficiency": "Expert"}],
  "experience": [
    {"company": "Acme", "title": "Engineer", "start": 2019, "end": null, "is_current": "true"}
  ],
  "education": [{"degree": "BSc", "institution": "TU Berlin", "start": "2012-09", "end": "2016-07"}]
}` + "\n```"

	x, err := DecodeExtraction(response)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", x.Candidate.Name)
	assert.Equal(t, "4915112345678", x.Candidate.Phone)
	assert.Equal(t, []string{"Go", "Kubernetes"}, x.Skills)
	require.Len(t, x.Experience, 1)
	assert.Equal(t, "2019", x.Experience[0].Start)
	assert.True(t, x.Experience[0].IsCurrent)
	assert.Empty(t, x.Projects)
	require.Len(t, x.Education, 1)
	assert.Equal(t, "TU Berlin", x.Education[0].Institution)
}

func TestDecodeExtractionInvalidJSON(t *testing.T) {
	_, err := DecodeExtraction("not json")
	assert.Error(t, err)
}

func TestNewServiceValidation(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	_, err := NewService(ctx, "none", "", "", log)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewService(ctx, "openai", "", "", log)
	assert.Error(t, err)

	_, err = NewService(ctx, "carrier-pigeon", "key", "", log)
	assert.Error(t, err)

	s, err := NewService(ctx, "ollama", "", "", log)
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", s.Model())
}
