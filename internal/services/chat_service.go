package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"csvchat/internal/events"
	"csvchat/internal/llm/client"
	"csvchat/internal/models"
	"csvchat/internal/stream"
	"csvchat/internal/utils"
)

const filesBaseURLEnv = "CSVCHAT_FILES_BASE_URL"

type sessionRuntime struct {
	client        *client.LLMClient
	modelKey      string
	modelDisplay  string
	providerID    string
	providerLabel string
}

// ChatService owns the per-conversation runtimes and drives one streamed
// query end to end: stream, aggregate, download artifacts, persist.
type ChatService struct {
	context        context.Context
	keyringService *KeyringService
	chatSessions   ChatSessionService
	modelConfigs   ModelConfigService
	contextFiles   *ContextFileService
	artifacts      *ArtifactService

	sessionMu       sync.RWMutex
	sessionRuntimes map[string]*sessionRuntime // sessionKey -> runtime
}

func NewChatService(keyringService *KeyringService, chatSessions ChatSessionService, modelConfigs ModelConfigService, contextFiles *ContextFileService, artifacts *ArtifactService) *ChatService {
	return &ChatService{
		keyringService:  keyringService,
		chatSessions:    chatSessions,
		modelConfigs:    modelConfigs,
		contextFiles:    contextFiles,
		artifacts:       artifacts,
		sessionRuntimes: make(map[string]*sessionRuntime),
	}
}

func (s *ChatService) Startup(ctx context.Context) error {
	s.context = ctx
	if s.keyringService == nil {
		return fmt.Errorf("keyring service not configured")
	}
	if s.chatSessions == nil {
		return fmt.Errorf("chat session service not configured")
	}
	if s.modelConfigs == nil {
		return fmt.Errorf("model configuration service not configured")
	}
	if s.contextFiles == nil {
		return fmt.Errorf("context file service not configured")
	}
	if s.artifacts == nil {
		return fmt.Errorf("artifact service not configured")
	}
	return nil
}

func makeSessionKey(sessionID uint) string {
	return fmt.Sprintf("session:%d", sessionID)
}

func resolveSessionKey(sessionKeyOverride string, sessionID uint) string {
	override := strings.TrimSpace(sessionKeyOverride)
	if override != "" {
		return override
	}
	return makeSessionKey(sessionID)
}

func (s *ChatService) instantiateLLMClient(modelKey string) (*client.LLMClient, *models.LLMModel, error) {
	model, err := s.modelConfigs.GetModel(modelKey)
	if err != nil {
		return nil, nil, err
	}
	if model == nil {
		return nil, nil, fmt.Errorf("model %s not found", modelKey)
	}
	if !model.Enabled {
		return nil, nil, fmt.Errorf("model %s is disabled", model.DisplayName)
	}

	providerID := strings.TrimSpace(model.ProviderID)
	if providerID == "" {
		return nil, nil, fmt.Errorf("model %s is missing provider information", model.DisplayName)
	}

	apiKey, err := s.keyringService.GetApiKey(providerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get API key for %s: %w", providerID, err)
	}
	if apiKey == "" {
		return nil, nil, fmt.Errorf("API key for %s is not configured", providerID)
	}

	var (
		llmClient *client.LLMClient
		createErr error
	)
	switch providerID {
	case "anthropic":
		llmClient, createErr = client.NewClaudeClient(s.context, apiKey, client.ClaudeModelOptions{
			Model:    model.APIName,
			Thinking: model.Thinking != nil && *model.Thinking,
		})
	case "openai":
		llmClient, createErr = client.NewOpenAIClient(s.context, apiKey, client.OpenAIModelOptions{
			Model:           model.APIName,
			ReasoningEffort: model.ReasoningEffort,
		})
	case "gemini":
		llmClient, createErr = client.NewGeminiClient(s.context, apiKey, client.GeminiModelOptions{
			Model:    model.APIName,
			Thinking: model.Thinking != nil && *model.Thinking,
		})
	default:
		return nil, nil, fmt.Errorf("unsupported provider: %s", providerID)
	}

	if createErr != nil {
		return nil, nil, fmt.Errorf("failed to create %s client: %w", providerID, createErr)
	}

	// Chart artifacts are served by the hosted files API, which authenticates
	// with the OpenAI key.
	if providerID == "openai" {
		s.artifacts.SetFetcher(NewHTTPContentFetcher(utils.Getenv(filesBaseURLEnv, ""), apiKey))
	}

	return llmClient, model, nil
}

func (s *ChatService) newSessionRuntime(modelKey string) (*sessionRuntime, *models.LLMModel, error) {
	modelKey = strings.TrimSpace(modelKey)
	if modelKey == "" {
		return nil, nil, fmt.Errorf("model is required")
	}
	llmClient, modelInfo, err := s.instantiateLLMClient(modelKey)
	if err != nil {
		return nil, nil, err
	}
	providerLabel := strings.TrimSpace(modelInfo.ProviderName)
	providerID := strings.TrimSpace(modelInfo.ProviderID)
	if providerLabel == "" {
		providerLabel = providerID
	}
	runtime := &sessionRuntime{
		client:        llmClient,
		modelKey:      modelKey,
		modelDisplay:  modelInfo.DisplayName,
		providerID:    providerID,
		providerLabel: providerLabel,
	}
	return runtime, modelInfo, nil
}

func (s *ChatService) getSessionRuntime(sessionKey string) (*sessionRuntime, bool) {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	runtime, ok := s.sessionRuntimes[sessionKey]
	return runtime, ok
}

func (s *ChatService) setSessionRuntime(sessionKey string, runtime *sessionRuntime) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if runtime == nil {
		delete(s.sessionRuntimes, sessionKey)
		return
	}
	if existing, ok := s.sessionRuntimes[sessionKey]; ok && existing != runtime && existing.client != nil {
		existing.client.StopStream()
	}
	s.sessionRuntimes[sessionKey] = runtime
}

func (s *ChatService) deleteSessionRuntime(sessionKey string) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if existing, ok := s.sessionRuntimes[sessionKey]; ok && existing != nil && existing.client != nil {
		existing.client.StopStream()
	}
	delete(s.sessionRuntimes, sessionKey)
}

// ensureRuntimeFromSession creates or retrieves a session runtime from a stored session
func (s *ChatService) ensureRuntimeFromSession(ctx context.Context, session *models.ChatSession, sessionKey string) (*sessionRuntime, error) {
	if runtime, ok := s.getSessionRuntime(sessionKey); ok && runtime != nil {
		return runtime, nil
	}

	modelKey := strings.TrimSpace(session.ModelKey)
	providerID := strings.TrimSpace(session.Provider)
	if modelKey == "" && providerID != "" {
		if fallback, fbErr := s.modelConfigs.DefaultModelForProvider(providerID); fbErr == nil && fallback != nil {
			modelKey = fallback.Key
		}
	}
	if modelKey == "" {
		return nil, fmt.Errorf("session has no model key configured")
	}

	runtime, modelInfo, err := s.newSessionRuntime(modelKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client from session: %w", err)
	}
	s.setSessionRuntime(sessionKey, runtime)

	if modelInfo != nil {
		emitSessionInfo(ctx, sessionKey, fmt.Sprintf("Initialized %s via %s from session", modelInfo.DisplayName, runtime.providerLabel))
	}

	if session.MessagesJSON != "" {
		if loadErr := runtime.client.LoadConversationHistoryJSON(session.MessagesJSON); loadErr != nil {
			emitSessionWarn(ctx, sessionKey, fmt.Sprintf("Failed to restore conversation history: %v", loadErr))
		} else {
			emitSessionInfo(ctx, sessionKey, "Restored LLM conversation history")
		}
	}
	return runtime, nil
}

// StartConversation creates a new persisted session bound to the given model.
func (s *ChatService) StartConversation(modelKey, title string) (*models.ChatSession, error) {
	ctx := s.context
	if ctx == nil {
		return nil, fmt.Errorf("chat service not initialized")
	}

	runtime, modelInfo, err := s.newSessionRuntime(modelKey)
	if err != nil {
		return nil, err
	}

	session, err := s.chatSessions.Create(&models.ChatSession{
		Title:            title,
		Provider:         runtime.providerID,
		ModelKey:         runtime.modelKey,
		MessagesJSON:     "[]",
		ChatMessagesJSON: "[]",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	sessionKey := makeSessionKey(session.ID)
	s.setSessionRuntime(sessionKey, runtime)
	if modelInfo != nil {
		emitSessionInfo(ctx, sessionKey, fmt.Sprintf("Started conversation with %s via %s", modelInfo.DisplayName, runtime.providerLabel))
	}
	return session, nil
}

// AskQuestion streams one query through the assistant, aggregates the
// response, downloads referenced artifacts and persists the exchange.
func (s *ChatService) AskQuestion(sessionID uint, question string, sessionKeyOverride string) (*models.ChatAnswer, error) {
	ctx := s.context
	if ctx == nil {
		return nil, fmt.Errorf("chat service not initialized")
	}
	if sessionID == 0 {
		return nil, fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	session, err := s.chatSessions.GetByID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found: %d", sessionID)
	}

	sessionKey := resolveSessionKey(sessionKeyOverride, sessionID)
	runtime, err := s.ensureRuntimeFromSession(ctx, session, sessionKey)
	if err != nil {
		return nil, err
	}

	existingChat := parseChatMessagesJSON(session.ChatMessagesJSON)

	emitSessionInfo(ctx, sessionKey, "AskQuestion: processing query")

	streamCtx := runtime.client.StartStream(ctx, sessionKey)
	defer runtime.client.StopStream()

	src, err := runtime.client.AskStream(streamCtx, question, s.contextFiles.ContextBlocks())
	if err != nil {
		return nil, err
	}
	defer src.Close()

	result, aggErr := stream.Aggregate(streamCtx, &emittingSource{
		inner:      src,
		ctx:        streamCtx,
		sessionKey: sessionKey,
	})

	partial := false
	if aggErr != nil {
		// A cancelled stream keeps its partial transcript; any other
		// failure discards it (the buffer may be inconsistent).
		if errors.Is(aggErr, context.Canceled) && result != nil {
			partial = true
			emitSessionWarn(ctx, sessionKey, "AskQuestion: stream cancelled, keeping partial transcript")
		} else {
			return nil, aggErr
		}
	}

	runtime.client.RecordAssistantReply(result.FormattedText)

	// Artifact downloads run on the service context: a user cancel aborts the
	// stream, not the retrieval of files already referenced.
	artifacts := s.artifacts.DownloadAll(ctx, sessionKey, result.FileIDs)

	chatMessages := appendChatMessages(existingChat, question, result.FormattedText)
	if historyJSON, histErr := runtime.client.ConversationHistoryJSON(); histErr == nil {
		_ = s.chatSessions.UpdateByID(session.ID, map[string]interface{}{
			"messages_json":      historyJSON,
			"chat_messages_json": marshalChatMessages(chatMessages),
		})
	}

	done := events.NewSuccess("AskQuestion: completed")
	done.SessionKey = sessionKey
	events.Emit(ctx, events.ChatEventDone, done)

	return &models.ChatAnswer{
		SessionID:  session.ID,
		SessionKey: sessionKey,
		Markdown:   result.FormattedText,
		FileIDs:    result.FileIDs,
		Artifacts:  artifacts,
		Partial:    partial,
	}, nil
}

// StopStream cancels the in-flight query for a session, if any.
func (s *ChatService) StopStream(sessionID uint, sessionKeyOverride string) {
	if s == nil || sessionID == 0 {
		return
	}
	sessionKey := resolveSessionKey(sessionKeyOverride, sessionID)
	runtime, ok := s.getSessionRuntime(sessionKey)
	if !ok || runtime == nil || runtime.client == nil {
		return
	}
	wasRunning := runtime.client.IsRunning()
	runtime.client.StopStream()
	if wasRunning && s.context != nil {
		emitSessionWarn(s.context, sessionKey, "Cancel requested: stopping response stream")
	}
}

// ListSessions returns all persisted conversations, newest first.
func (s *ChatService) ListSessions() ([]models.ChatSession, error) {
	return s.chatSessions.List()
}

// GetTranscript restores the runtime for a stored session and returns its
// user-facing transcript.
func (s *ChatService) GetTranscript(sessionID uint) ([]models.ChatMessage, error) {
	ctx := s.context
	if ctx == nil {
		return nil, fmt.Errorf("chat service not initialized")
	}
	if sessionID == 0 {
		return nil, fmt.Errorf("session id is required")
	}

	session, err := s.chatSessions.GetByID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found: %d", sessionID)
	}

	sessionKey := makeSessionKey(sessionID)
	if _, err := s.ensureRuntimeFromSession(ctx, session, sessionKey); err != nil {
		emitSessionWarn(ctx, sessionKey, fmt.Sprintf("Transcript loaded without runtime: %v", err))
	}

	return parseChatMessagesJSON(session.ChatMessagesJSON), nil
}

// CleanupSession tears down one conversation: its runtime and its stored row.
func (s *ChatService) CleanupSession(sessionID uint) error {
	if sessionID == 0 {
		return fmt.Errorf("session id is required")
	}
	sessionKey := makeSessionKey(sessionID)
	s.deleteSessionRuntime(sessionKey)
	if err := s.chatSessions.DeleteByID(sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if s.context != nil {
		evt := events.NewSuccess("Session cleaned up")
		evt.SessionKey = sessionKey
		events.Emit(s.context, events.ChatEventLog, evt)
	}
	return nil
}

// CleanupAll implements the manual "Cleanup Resources" action: every runtime
// is dropped, every stored conversation deleted and every downloaded
// artifact removed.
func (s *ChatService) CleanupAll() error {
	s.sessionMu.Lock()
	for key, runtime := range s.sessionRuntimes {
		if runtime != nil && runtime.client != nil {
			runtime.client.StopStream()
		}
		delete(s.sessionRuntimes, key)
	}
	s.sessionMu.Unlock()

	if err := s.chatSessions.DeleteAll(); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	if err := s.artifacts.Cleanup(); err != nil {
		return fmt.Errorf("failed to remove artifacts: %w", err)
	}
	if s.context != nil {
		events.Emit(s.context, events.ChatEventLog, events.NewSuccess("Resources cleaned up"))
	}
	return nil
}

func emitSessionInfo(ctx context.Context, sessionKey string, message string) {
	evt := events.NewInfo(message)
	evt.SessionKey = sessionKey
	events.Emit(ctx, events.ChatEventLog, evt)
}

func emitSessionWarn(ctx context.Context, sessionKey string, message string) {
	evt := events.NewWarn(message)
	evt.SessionKey = sessionKey
	events.Emit(ctx, events.ChatEventLog, evt)
}

// emittingSource tees each fragment to the frontend as a delta event before
// handing it to the aggregator.
type emittingSource struct {
	inner      stream.Source
	ctx        context.Context
	sessionKey string
}

func (s *emittingSource) Recv() (*stream.Fragment, error) {
	frag, err := s.inner.Recv()
	if err != nil {
		return nil, err
	}
	if frag != nil {
		events.EmitDelta(s.ctx, events.StreamDelta{
			SessionKey: s.sessionKey,
			Text:       frag.Text,
			IsCode:     frag.IsCode,
			Role:       frag.Role,
			FileIDs:    frag.FileIDs,
		})
	}
	return frag, nil
}

func parseChatMessagesJSON(raw string) []models.ChatMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil
	}
	var msgs []models.ChatMessage
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil
	}

	clean := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := strings.TrimSpace(strings.ToLower(m.Role))
		content := strings.TrimSpace(m.Content)
		if role != "user" && role != "assistant" {
			continue
		}
		if content == "" {
			continue
		}
		clean = append(clean, models.ChatMessage{
			Role:      role,
			Content:   content,
			CreatedAt: strings.TrimSpace(m.CreatedAt),
		})
	}
	return clean
}

func marshalChatMessages(msgs []models.ChatMessage) string {
	if len(msgs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func appendChatMessages(existing []models.ChatMessage, userText, assistantText string) []models.ChatMessage {
	user := strings.TrimSpace(userText)
	assistant := strings.TrimSpace(assistantText)
	if user == "" && assistant == "" {
		return existing
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	updated := make([]models.ChatMessage, 0, len(existing)+2)
	updated = append(updated, existing...)

	if user != "" {
		updated = append(updated, models.ChatMessage{
			Role:      "user",
			Content:   user,
			CreatedAt: now,
		})
	}

	if assistant != "" {
		updated = append(updated, models.ChatMessage{
			Role:      "assistant",
			Content:   assistant,
			CreatedAt: now,
		})
	}

	return updated
}
