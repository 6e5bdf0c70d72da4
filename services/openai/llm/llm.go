package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"

	"turnkit/core"
	"turnkit/prompt"
)

// OpenAILLMService answers assembled prompts with OpenAI chat completions.
type OpenAILLMService struct {
	client      *openai.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float32

	isInitialized bool
	mu            sync.RWMutex
}

// Config holds the configuration for the OpenAI service
type Config struct {
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		MaxTokens:   512,
		Temperature: 0.7,
	}
}

// NewOpenAILLMService creates a new instance of OpenAILLMService
func NewOpenAILLMService(config Config) *OpenAILLMService {
	return &OpenAILLMService{
		apiKey:      config.APIKey,
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
	}
}

// Init initializes the OpenAI service
func (s *OpenAILLMService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.apiKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	s.client = openai.NewClient(s.apiKey)
	s.isInitialized = true
	return nil
}

// Cleanup performs cleanup operations
func (s *OpenAILLMService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.isInitialized = false
	return nil
}

// Reset resets the service state
func (s *OpenAILLMService) Reset() error {
	return nil
}

// Complete sends the assembled prompt as a chat completion request and
// returns the response text. Cancellation of ctx aborts the request.
func (s *OpenAILLMService) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	s.mu.RLock()
	client := s.client
	initialized := s.isInitialized
	s.mu.RUnlock()

	if !initialized || client == nil {
		return "", fmt.Errorf("OpenAI service is not initialized")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(p.Context)+2)
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.System,
		})
	}
	for _, msg := range p.Context {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    mapRole(msg.Role),
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: p.UserInput,
	})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func mapRole(role core.ChatRole) string {
	switch role {
	case core.ChatRoleAssistant:
		return openai.ChatMessageRoleAssistant
	case core.ChatRoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
