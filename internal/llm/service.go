package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"google.golang.org/genai"

	phttp "talent-match/pkg/http"
)

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderGroq   Provider = "groq"
	ProviderGemini Provider = "gemini"
	ProviderNone   Provider = "none"
)

var ErrNotConfigured = errors.New("LLM provider not configured")

type Service struct {
	provider Provider
	apiKey   string
	model    string
	http     *phttp.Client
	gemini   *genai.Client
	log      *zap.Logger
}

// Extraction is the structured resume the model is asked to return.
type Extraction struct {
	Candidate  Candidate    `mapstructure:"candidate"`
	Skills     []string     `mapstructure:"skills"`
	Experience []Experience `mapstructure:"experience"`
	Projects   []Project    `mapstructure:"projects"`
	Education  []Education  `mapstructure:"education"`
}

type Candidate struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Phone    string `mapstructure:"phone"`
	Location string `mapstructure:"location"`
}

type Experience struct {
	Company     string   `mapstructure:"company"`
	Title       string   `mapstructure:"title"`
	Description string   `mapstructure:"description"`
	Start       string   `mapstructure:"start"`
	End         string   `mapstructure:"end"`
	IsCurrent   bool     `mapstructure:"is_current"`
	Skills      []string `mapstructure:"skills"`
}

type Project struct {
	Name        string   `mapstructure:"name"`
	Role        string   `mapstructure:"role"`
	Description string   `mapstructure:"description"`
	Start       string   `mapstructure:"start"`
	End         string   `mapstructure:"end"`
	IsCurrent   bool     `mapstructure:"is_current"`
	Skills      []string `mapstructure:"skills"`
}

type Education struct {
	Degree      string `mapstructure:"degree"`
	Field       string `mapstructure:"field"`
	Institution string `mapstructure:"institution"`
	Start       string `mapstructure:"start"`
	End         string `mapstructure:"end"`
}

var defaultModels = map[Provider]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderGroq:   "llama-3.3-70b-versatile",
	ProviderOllama: "llama3.1",
	ProviderGemini: "gemini-2.5-flash",
}

func NewService(ctx context.Context, provider, apiKey, model string, log *zap.Logger) (*Service, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(provider)))
	if p == "" || p == ProviderNone {
		return nil, ErrNotConfigured
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModels[p]
	}

	s := &Service{
		provider: p,
		apiKey:   apiKey,
		model:    model,
		http:     phttp.NewClient(10 * time.Minute), // large CVs on slow local models
		log:      log.Named("llm"),
	}

	switch p {
	case ProviderOpenAI, ProviderGroq:
		if apiKey == "" {
			return nil, fmt.Errorf("%s api key is required", p)
		}
	case ProviderOllama:
	case ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		s.gemini = client
	default:
		return nil, fmt.Errorf("unknown provider: %s", p)
	}
	return s, nil
}

func (s *Service) Provider() string { return string(s.provider) }

func (s *Service) Model() string { return s.model }

// Generate sends a prompt to the configured model and returns its text answer.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	switch s.provider {
	case ProviderOpenAI:
		return s.callChat(ctx, "https://api.openai.com/v1/chat/completions", prompt)
	case ProviderGroq:
		return s.callChat(ctx, "https://api.groq.com/openai/v1/chat/completions", prompt)
	case ProviderOllama:
		return s.callOllama(ctx, prompt)
	case ProviderGemini:
		return s.callGemini(ctx, prompt)
	default:
		return "", ErrNotConfigured
	}
}

// ExtractFacts asks the model for a structured resume.
func (s *Service) ExtractFacts(ctx context.Context, cvText string) (*Extraction, error) {
	start := time.Now()
	response, err := s.Generate(ctx, buildPrompt(cvText))
	if err != nil {
		return nil, err
	}
	s.log.Debug("extraction response",
		zap.String("provider", string(s.provider)),
		zap.Duration("took", time.Since(start)),
		zap.Int("length", len(response)))

	return DecodeExtraction(response)
}

// DecodeExtraction parses the model output. Models are loose with types
// (years as numbers, skills as objects), so decoding is weakly typed.
func DecodeExtraction(response string) (*Extraction, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(response)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	var out Extraction
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       namedObjectToString,
		Result:           &out,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode LLM response: %w", err)
	}
	return &out, nil
}

// namedObjectToString turns {"name": "Go", ...} into "Go" where a string is expected.
func namedObjectToString(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Map {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	for _, key := range []string{"name", "skill", "value"} {
		if v, ok := m[key].(string); ok {
			return v, nil
		}
	}
	return "", nil
}

func cleanJSON(input string) string {
	clean := strings.TrimSpace(input)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}

func buildPrompt(cvText string) string {
	return fmt.Sprintf(`You are an expert CV parser. Extract structured information from this CV.

CV Text:
"""
%s
"""

Extract and return ONLY valid JSON (no markdown, no explanation) with this exact structure:
{
  "candidate": {"name": "", "email": "", "phone": "", "location": ""},
  "skills": ["Canonical skill name"],
  "experience": [
    {"company": "", "title": "", "description": "", "start": "YYYY-MM", "end": "YYYY-MM", "is_current": false, "skills": []}
  ],
  "projects": [
    {"name": "", "role": "", "description": "", "start": "YYYY-MM", "end": "YYYY-MM", "is_current": false, "skills": []}
  ],
  "education": [
    {"degree": "", "field": "", "institution": "", "start": "YYYY-MM", "end": "YYYY-MM"}
  ]
}

Important:
- Normalize skill names (e.g., "K8s" -> "Kubernetes", "JS" -> "JavaScript", "React.js" -> "React")
- Dates use YYYY-MM; use YYYY when only the year is known; leave end empty and set is_current for ongoing roles
- Keep every role, even when periods overlap
- Return empty arrays if no data found for a category`, cvText)
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Service) callChat(ctx context.Context, url, prompt string) (string, error) {
	reqBody := map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a CV parser. Return only valid JSON."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
		"response_format": map[string]string{
			"type": "json_object",
		},
	}

	var result chatResponse
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	if err := s.http.PostJSON(ctx, url, headers, reqBody, &result); err != nil {
		return "", fmt.Errorf("%s API error: %w", s.provider, err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("%s error: %s", s.provider, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", s.provider)
	}
	return result.Choices[0].Message.Content, nil
}

func (s *Service) callOllama(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  s.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}

	var result struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	start := time.Now()
	err := s.http.PostJSON(ctx, "http://localhost:11434/api/generate", nil, reqBody, &result)
	s.log.Debug("ollama request", zap.String("model", s.model), zap.Duration("took", time.Since(start)))
	if err != nil {
		return "", fmt.Errorf("Ollama connection failed (is Ollama running?): %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("Ollama error: %s", result.Error)
	}
	return result.Response, nil
}

func (s *Service) callGemini(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
	}
	resp, err := s.gemini.Models.GenerateContent(ctx, s.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || strings.TrimSpace(part.Text) == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
	}
	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}
