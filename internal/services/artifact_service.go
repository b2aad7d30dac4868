package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"csvchat/internal/events"
	"csvchat/internal/models"
	"csvchat/internal/utils"

	filepathx "github.com/yargevad/filepathx"
)

const (
	artifactsDirEnv     = "CSVCHAT_ARTIFACTS_DIR"
	defaultArtifactsDir = "artifacts"

	defaultFilesBaseURL = "https://api.openai.com/v1"
	fetchTimeout        = 60 * time.Second
)

// ContentFetcher retrieves the raw bytes of an artifact referenced in a
// response stream. Failures are per-file and never abort an aggregation
// result already computed.
type ContentFetcher interface {
	FetchContent(ctx context.Context, fileID string) ([]byte, error)
}

// ArtifactService persists assistant-generated files (chart PNGs) locally.
type ArtifactService struct {
	context context.Context

	mu      sync.RWMutex
	dir     string
	fetcher ContentFetcher
}

func NewArtifactService(fetcher ContentFetcher) *ArtifactService {
	return &ArtifactService{
		dir:     utils.Getenv(artifactsDirEnv, defaultArtifactsDir),
		fetcher: fetcher,
	}
}

func (s *ArtifactService) Startup(ctx context.Context) error {
	s.context = ctx
	s.mu.RLock()
	dir := s.dir
	s.mu.RUnlock()
	return os.MkdirAll(dir, 0755)
}

// SetFetcher swaps the content fetcher, e.g. when the API key changes.
func (s *ArtifactService) SetFetcher(fetcher ContentFetcher) {
	s.mu.Lock()
	s.fetcher = fetcher
	s.mu.Unlock()
}

// DownloadAll fetches every referenced file id in order, skipping duplicates
// already downloaded in this batch. A failed id is reported as a warning and
// does not stop the remaining downloads.
func (s *ArtifactService) DownloadAll(ctx context.Context, sessionKey string, fileIDs []string) []models.Artifact {
	s.mu.RLock()
	fetcher := s.fetcher
	dir := s.dir
	s.mu.RUnlock()

	if fetcher == nil || len(fileIDs) == 0 {
		return nil
	}

	var artifacts []models.Artifact
	seen := make(map[string]bool, len(fileIDs))
	for _, fileID := range fileIDs {
		fileID = strings.TrimSpace(fileID)
		if fileID == "" || seen[fileID] {
			continue
		}
		seen[fileID] = true

		data, err := fetcher.FetchContent(ctx, fileID)
		if err != nil {
			s.emitWarn(ctx, sessionKey, fmt.Sprintf("An error occurred while downloading file %s: %v", fileID, err))
			continue
		}

		path := filepath.Join(dir, fileID+".png")
		if err := os.WriteFile(path, data, 0644); err != nil {
			s.emitWarn(ctx, sessionKey, fmt.Sprintf("Failed to save file %s: %v", fileID, err))
			continue
		}

		artifacts = append(artifacts, models.Artifact{
			FileID: fileID,
			Path:   path,
			Size:   int64(len(data)),
		})
		s.emitInfo(ctx, sessionKey, fmt.Sprintf("File saved to: %s", path))
	}
	return artifacts
}

// List returns every artifact currently on disk.
func (s *ArtifactService) List() ([]models.Artifact, error) {
	s.mu.RLock()
	dir := s.dir
	s.mu.RUnlock()

	matches, err := filepathx.Glob(filepath.Join(dir, "**", "*.png"))
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	artifacts := make([]models.Artifact, 0, len(matches))
	for _, path := range matches {
		info, statErr := os.Stat(path)
		if statErr != nil || info.IsDir() {
			continue
		}
		artifacts = append(artifacts, models.Artifact{
			FileID: strings.TrimSuffix(filepath.Base(path), ".png"),
			Path:   path,
			Size:   info.Size(),
		})
	}
	return artifacts, nil
}

// Cleanup removes all downloaded artifacts. Part of the manual resource
// cleanup action.
func (s *ArtifactService) Cleanup() error {
	artifacts, err := s.List()
	if err != nil {
		return err
	}
	for _, artifact := range artifacts {
		if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove artifact %s: %w", artifact.FileID, err)
		}
	}
	return nil
}

func (s *ArtifactService) emitInfo(ctx context.Context, sessionKey, message string) {
	evt := events.NewInfo(message)
	evt.SessionKey = sessionKey
	events.Emit(ctx, events.ChatEventLog, evt)
}

func (s *ArtifactService) emitWarn(ctx context.Context, sessionKey, message string) {
	evt := events.NewWarn(message)
	evt.SessionKey = sessionKey
	events.Emit(ctx, events.ChatEventLog, evt)
}

// httpContentFetcher retrieves file content from the hosted files API.
type httpContentFetcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPContentFetcher builds a fetcher against the files-content endpoint
// of the hosted service. An empty baseURL targets the default API.
func NewHTTPContentFetcher(baseURL, apiKey string) ContentFetcher {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultFilesBaseURL
	}
	return &httpContentFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

func (f *httpContentFetcher) FetchContent(ctx context.Context, fileID string) ([]byte, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, fmt.Errorf("file id is required")
	}

	url := fmt.Sprintf("%s/files/%s/content", f.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("files API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return io.ReadAll(resp.Body)
}
