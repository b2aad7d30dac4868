package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"csvchat/internal/events"
	"csvchat/internal/stream"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const defaultClaudeMaxTokens = 8192

// LLMClient drives one conversational session against a hosted chat model.
// The provider-specific construction happens in the New*Client constructors;
// everything else is provider-agnostic through eino's model interface.
type LLMClient struct {
	chatModel  model.BaseChatModel
	providerID string
	modelName  string

	historyMu sync.Mutex
	history   []*schema.Message

	streamMu     sync.Mutex
	streamCancel context.CancelFunc
}

type OpenAIModelOptions struct {
	Model           string
	ReasoningEffort string
}

type ClaudeModelOptions struct {
	Model    string
	Thinking bool
}

type GeminiModelOptions struct {
	Model    string
	Thinking bool
}

func NewOpenAIClient(ctx context.Context, key string, opts OpenAIModelOptions) (*LLMClient, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey: key,
		Model:  opts.Model,
	})
	if err != nil {
		log.Printf("Error creating OpenAI client: %v", err)
		return nil, err
	}
	return &LLMClient{chatModel: chatModel, providerID: "openai", modelName: opts.Model}, nil
}

func NewClaudeClient(ctx context.Context, key string, opts ClaudeModelOptions) (*LLMClient, error) {
	chatModel, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:    key,
		Model:     opts.Model,
		MaxTokens: defaultClaudeMaxTokens,
	})
	if err != nil {
		log.Printf("Error creating Claude client: %v", err)
		return nil, err
	}
	return &LLMClient{chatModel: chatModel, providerID: "anthropic", modelName: opts.Model}, nil
}

func NewGeminiClient(ctx context.Context, key string, opts GeminiModelOptions) (*LLMClient, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Printf("Error creating Gemini client: %v", err)
		return nil, err
	}
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: genaiClient,
		Model:  opts.Model,
	})
	if err != nil {
		log.Printf("Error creating Gemini chat model: %v", err)
		return nil, err
	}
	return &LLMClient{chatModel: chatModel, providerID: "gemini", modelName: opts.Model}, nil
}

func (c *LLMClient) ProviderID() string {
	return c.providerID
}

func (c *LLMClient) ModelName() string {
	return c.modelName
}

// StartStream derives a cancellable context annotated with the session key so
// events emitted while streaming are scoped to the right UI session. Any
// previous stream on this client is cancelled first.
func (c *LLMClient) StartStream(ctx context.Context, sessionKey string) context.Context {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.streamCancel != nil {
		c.streamCancel()
	}
	streamCtx, cancel := context.WithCancel(events.WithSession(ctx, sessionKey))
	c.streamCancel = cancel
	return streamCtx
}

// StopStream cancels the in-flight stream, if any.
func (c *LLMClient) StopStream() {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
}

func (c *LLMClient) IsRunning() bool {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	return c.streamCancel != nil
}

// AskStream sends the user question with the assistant instructions, the CSV
// context blocks and the conversation so far, and returns the response as a
// fragment source. The question is appended to the history immediately; the
// assistant's reply is recorded by the caller once aggregation finishes.
func (c *LLMClient) AskStream(ctx context.Context, question string, contextBlocks []string) (stream.SourceCloser, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	system := assistantInstructions()
	if len(contextBlocks) > 0 {
		system += "\n\nThe following data files are available as context:\n\n" + strings.Join(contextBlocks, "\n\n")
	}

	c.historyMu.Lock()
	messages := make([]*schema.Message, 0, len(c.history)+2)
	messages = append(messages, schema.SystemMessage(system))
	messages = append(messages, c.history...)
	messages = append(messages, schema.UserMessage(question))
	c.history = append(c.history, schema.UserMessage(question))
	c.historyMu.Unlock()

	reader, err := c.chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to start response stream: %w", err)
	}
	if reader == nil {
		return nil, fmt.Errorf("chat model returned nil stream reader")
	}

	return &messageSource{reader: reader}, nil
}

// RecordAssistantReply appends the aggregated assistant answer to the
// conversation history so follow-up questions keep their context.
func (c *LLMClient) RecordAssistantReply(answer string) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return
	}
	c.historyMu.Lock()
	c.history = append(c.history, schema.AssistantMessage(answer, nil))
	c.historyMu.Unlock()
}

// LastAssistantMessage returns the content of the most recent assistant turn.
func (c *LLMClient) LastAssistantMessage() string {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i] != nil && c.history[i].Role == schema.Assistant {
			return c.history[i].Content
		}
	}
	return ""
}

// ConversationHistoryJSON serializes the in-memory history for persistence.
func (c *LLMClient) ConversationHistoryJSON() (string, error) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	if len(c.history) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(c.history)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	return string(data), nil
}

// LoadConversationHistoryJSON restores a persisted history, normalizing it so
// the first non-system message is a user turn (providers reject histories
// that open with an assistant message).
func (c *LLMClient) LoadConversationHistoryJSON(historyJSON string) error {
	historyJSON = strings.TrimSpace(historyJSON)
	if historyJSON == "" || historyJSON == "[]" {
		return nil
	}
	var restored []*schema.Message
	if err := json.Unmarshal([]byte(historyJSON), &restored); err != nil {
		return fmt.Errorf("failed to parse conversation history: %w", err)
	}
	normalized, _ := normalizeConversationHistory(restored, "")
	c.historyMu.Lock()
	c.history = normalized
	c.historyMu.Unlock()
	return nil
}

const defaultFallbackQuestion = "Please continue the analysis of the available data."

// normalizeConversationHistory drops leading assistant turns (after any
// leading system messages) and inserts a fallback user message when the
// history contains no user turn at all. Returns the possibly-rewritten
// history and whether anything changed.
func normalizeConversationHistory(history []*schema.Message, fallback string) ([]*schema.Message, bool) {
	if strings.TrimSpace(fallback) == "" {
		fallback = defaultFallbackQuestion
	}

	firstContent := 0
	for firstContent < len(history) && history[firstContent] != nil && history[firstContent].Role == schema.System {
		firstContent++
	}
	if firstContent < len(history) && history[firstContent] != nil && history[firstContent].Role == schema.User {
		return history, false
	}

	// Find the first user turn and cut everything before it.
	for i := firstContent; i < len(history); i++ {
		if history[i] != nil && history[i].Role == schema.User {
			normalized := make([]*schema.Message, 0, len(history))
			normalized = append(normalized, history[:firstContent]...)
			normalized = append(normalized, history[i:]...)
			return normalized, true
		}
	}

	// No user turn at all: keep the tail but open with a synthetic question.
	normalized := make([]*schema.Message, 0, len(history)+1)
	normalized = append(normalized, history[:firstContent]...)
	normalized = append(normalized, schema.UserMessage(fallback))
	normalized = append(normalized, history[firstContent:]...)
	return normalized, true
}
