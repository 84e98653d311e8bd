package adapter

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"notegraph/internal/graph"
	"notegraph/pkg/errors"
	"notegraph/pkg/logger"
)

// Tool represents a function exposed to the external orchestration loop
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a callable function and its parameter schema
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// maxNoteChars bounds how much note content is sent per extraction call
const maxNoteChars = 12000

const extractionSystemPrompt = `You extract a knowledge graph from one note of a personal vault.

Return ONLY a JSON object, no prose, of the shape:
{
  "nodes": [{"id": "n1", "label": "Person", "name": "Alan Turing", "properties": {"field": "computer science"}}],
  "relationships": [{"source": "n1", "target": "n2", "type": "performs", "detail": "proposed the imitation game"}]
}

Rules:
- "id" values are temporary and local to this response; use them only to wire relationships.
- "label" is a free-form classification (Person, Concept, Method, Event, ...).
- "name" is the canonical display name of the entity.
- "type" must be one of: part_of, leads_to, performs, references, related_to.
- "detail" is one short sentence describing the relationship.
- Extract only entities and relationships actually supported by the note text.`

// Extractor turns raw note text into an extraction batch via a LiteLLM-style
// chat-completion endpoint
type Extractor struct {
	client *openai.Client
	model  string
	mu     sync.RWMutex // Protects model field for concurrent access
	logger *zap.Logger
}

// NewExtractor creates a new extraction client
func NewExtractor(baseURL, apiKey, modelID string) *Extractor {
	// For LiteLLM, we can use a dummy API key if not provided
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &Extractor{
		client: openai.NewClientWithConfig(config),
		model:  modelID,
		logger: logger.Named("adapter"),
	}
}

// SetModel updates the model used by this extractor
func (a *Extractor) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("Extractor model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *Extractor) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Extract requests an extraction batch for one note's content
func (a *Extractor) Extract(ctx context.Context, notePath, content string) (*graph.Batch, error) {
	content = truncateNote(content)

	a.mu.RLock()
	currentModel := a.model
	a.mu.RUnlock()

	req := openai.ChatCompletionRequest{
		Model: currentModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
		Temperature: 0.2,
	}

	// Retry logic with exponential backoff
	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("Retrying extraction request",
				zap.String("note", notePath),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("Extraction request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
			zap.String("note", notePath),
		)
	}

	if err != nil {
		return nil, errors.NewExtractionFailed(currentModel, maxRetries, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewExtractionFailed(currentModel, maxRetries, nil)
	}

	batch, err := parseBatch(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Extraction batch received",
		zap.String("note", notePath),
		zap.String("model", currentModel),
		zap.Int("nodes", len(batch.Nodes)),
		zap.Int("relationships", len(batch.Relations)),
	)
	return batch, nil
}

// truncateNote bounds the content sent per request, backing off to the
// nearest rune boundary so the cut never produces invalid UTF-8
func truncateNote(content string) string {
	if len(content) <= maxNoteChars {
		return content
	}
	cut := maxNoteChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// parseBatch decodes the model's JSON reply, tolerating markdown code fences
func parseBatch(raw string) (*graph.Batch, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var batch graph.Batch
	if err := json.Unmarshal([]byte(text), &batch); err != nil {
		return nil, errors.NewMalformedBatch(raw, err)
	}
	return &batch, nil
}
