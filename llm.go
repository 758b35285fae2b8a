package concursoprep

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// ErrNoCredentials is returned when the chosen provider has no API key
var ErrNoCredentials = errors.New("llm provider has no credentials configured")

// Provider names accepted as model choice
const (
	ProviderGroq     = "groq"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
)

const (
	groqBaseURL     = "https://api.groq.com/openai/v1"
	deepSeekBaseURL = "https://api.deepseek.com/v1"
)

// ChatMessage is one turn of a conversation; Role is "user" or "assistant"
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is a provider-neutral chat completion request
type ChatRequest struct {
	System      string
	Messages    []ChatMessage
	Temperature float32
	JSON        bool
}

// ChatModel completes a conversation and returns the reply text
type ChatModel interface {
	Name() string
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// OpenAIChat talks to any OpenAI-compatible endpoint (Groq, DeepSeek)
type OpenAIChat struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAIChat creates a chat model for an OpenAI-compatible API. An
// empty baseURL means api.openai.com.
func NewOpenAIChat(name, apiKey, baseURL, model string, timeout time.Duration) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OpenAIChat{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider name
func (oc *OpenAIChat) Name() string {
	return oc.name
}

// Complete sends the conversation as a chat completion
func (oc *OpenAIChat) Complete(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	ccr := openai.ChatCompletionRequest{
		Model:       oc.model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.JSON {
		ccr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := oc.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", oc.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", oc.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiChat talks to Google's Gemini API
type GeminiChat struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiChat creates a Gemini chat model. The client is dialed on
// first use.
func NewGeminiChat(apiKey, model string) *GeminiChat {
	return &GeminiChat{apiKey: apiKey, model: model}
}

// Name returns the provider name
func (gc *GeminiChat) Name() string {
	return ProviderGemini
}

func (gc *GeminiChat) getClient(ctx context.Context) (*genai.Client, error) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.client != nil {
		return gc.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(gc.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	gc.client = client
	return client, nil
}

// Complete sends the conversation through a Gemini chat session
func (gc *GeminiChat) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("empty conversation")
	}
	client, err := gc.getClient(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(gc.model)
	model.SetTemperature(req.Temperature)
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	cs := model.StartChat()
	last := len(req.Messages) - 1
	for _, m := range req.Messages[:last] {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(req.Messages[last].Content))
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", errors.New("empty response from gemini")
	}
	return sb.String(), nil
}

// Close releases the Gemini client
func (gc *GeminiChat) Close() error {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.client == nil {
		return nil
	}
	err := gc.client.Close()
	gc.client = nil
	return err
}

// Registry maps a model choice to a configured chat model
type Registry struct {
	models map[string]ChatModel
	def    string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]ChatModel)}
}

// NewRegistryFromConfig registers every provider that has an API key.
// The first configured of groq, deepseek, gemini becomes the default.
func NewRegistryFromConfig(cfg *Config) *Registry {
	r := NewRegistry()
	if cfg.GroqAPIKey != "" {
		r.Register(NewOpenAIChat(ProviderGroq, cfg.GroqAPIKey, groqBaseURL, cfg.GroqModel, cfg.LLMTimeout))
	}
	if cfg.DeepSeekAPIKey != "" {
		r.Register(NewOpenAIChat(ProviderDeepSeek, cfg.DeepSeekAPIKey, deepSeekBaseURL, cfg.DeepSeekModel, cfg.LLMTimeout))
	}
	if cfg.GeminiAPIKey != "" {
		r.Register(NewGeminiChat(cfg.GeminiAPIKey, cfg.GeminiModel))
	}
	return r
}

// Register adds a model under its name
func (r *Registry) Register(m ChatModel) {
	if r.def == "" {
		r.def = m.Name()
	}
	r.models[m.Name()] = m
}

// Get returns the model for a choice; an empty choice means the default
func (r *Registry) Get(choice string) (ChatModel, error) {
	choice = strings.ToLower(strings.TrimSpace(choice))
	if choice == "" {
		choice = r.def
	}
	m, ok := r.models[choice]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoCredentials, choice)
	}
	return m, nil
}

// Names lists the registered providers
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases providers that hold connections
func (r *Registry) Close() {
	for _, m := range r.models {
		if c, ok := m.(interface{ Close() error }); ok {
			c.Close()
		}
	}
}
