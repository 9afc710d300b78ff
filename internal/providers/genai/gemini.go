package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"funnelforge/internal/content"
	"funnelforge/internal/domain"
)

const (
	geminiDefaultTimeout = 60 * time.Second
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-1.5-flash"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// GeminiClient generates one chunk's field map per call by requesting a
// strictly JSON-shaped response from the Gemini API. It performs no
// fallback: a transport error, non-2xx status, or unparseable payload is
// returned to the caller as a chunk failure.
type GeminiClient struct {
	apiKey string
	base   string
	model  string
	client *http.Client
	logger zerolog.Logger
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient validates options and builds a client.
func NewGeminiClient(opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = geminiDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = geminiDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &GeminiClient{
		apiKey: opts.APIKey,
		base:   base,
		model:  model,
		client: client,
		logger: logger,
	}, nil
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string { return g.model }

func (g *GeminiClient) GenerateChunk(ctx context.Context, req ChunkRequest) (content.Document, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildChunkPrompt(req)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.6,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), &buf)
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini call: %v", domain.ErrProviderFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: gemini call: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	text := extractText(out)
	if text == "" {
		return nil, errors.New("gemini response contained no text")
	}
	doc, err := parseChunkPayload(text, req.Fields)
	if err != nil {
		return nil, fmt.Errorf("parse chunk %s: %w", req.ChunkID, err)
	}
	g.logger.Debug().
		Str("chunk_id", req.ChunkID).
		Str("content_type", req.ContentType).
		Int("fields", len(doc)).
		Msg("gemini chunk generated")
	return doc, nil
}

func (g *GeminiClient) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.base, url.PathEscape(g.model))
}

func extractText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

// parseChunkPayload decodes the model output into a field map restricted to
// the requested field set. Fields the model invented are dropped; fields it
// omitted stay absent and are reported downstream by schema validation.
func parseChunkPayload(raw string, fields []content.FieldSpec) (content.Document, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return nil, errors.New("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, err
	}
	requested := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		requested[f.Name] = struct{}{}
	}
	doc := make(content.Document, len(decoded))
	for name, val := range decoded {
		if _, ok := requested[name]; ok {
			doc[name] = val
		}
	}
	if len(doc) == 0 {
		return nil, errors.New("no requested fields in payload")
	}
	return doc, nil
}

func buildChunkPrompt(req ChunkRequest) string {
	sb := &strings.Builder{}
	label := req.ContentLabel
	if label == "" {
		label = req.ContentType
	}
	fmt.Fprintf(sb, "You are a direct-response marketing copywriter. Generate the %q portion of a %s. ", req.ChunkID, label)
	sb.WriteString("Respond strictly with a single JSON object whose keys are exactly: ")
	shape := make([]string, 0, len(req.Fields))
	for _, f := range req.Fields {
		if f.SubAttr != "" {
			shape = append(shape, fmt.Sprintf("%q:{%q:string}", f.Name, f.SubAttr))
		} else {
			shape = append(shape, fmt.Sprintf("%q:string", f.Name))
		}
	}
	sb.WriteString("{" + strings.Join(shape, ",") + "}")
	sb.WriteString(". Do not add keys outside this set. ")
	if len(req.Context) > 0 {
		ctxJSON, err := json.Marshal(req.Context)
		if err == nil {
			fmt.Fprintf(sb, "Business context: %s. ", ctxJSON)
		}
	}
	sb.WriteString("Write persuasive, concise copy consistent with the business context.")
	return sb.String()
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var _ Generator = (*GeminiClient)(nil)
