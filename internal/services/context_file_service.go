package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"csvchat/internal/events"
	"csvchat/internal/models"
	"csvchat/internal/utils"

	filepathx "github.com/yargevad/filepathx"
)

const (
	contextFilesEnv = "CSVCHAT_CONTEXT_FILES"
	dataDirEnv      = "CSVCHAT_DATA_DIR"
	defaultDataDir  = "data"

	// Rows inlined per file in the assistant context. The remote service sees
	// a preview, not the whole table; row counts are still reported in full.
	maxPreviewRows = 50
)

// ContextFileService loads the CSV files the assistant analyzes and renders
// them as markdown context blocks for the system prompt.
type ContextFileService struct {
	context context.Context

	mu      sync.RWMutex
	dataDir string
	loaded  []loadedContextFile
}

type loadedContextFile struct {
	meta  models.ContextFile
	block string
}

func NewContextFileService() *ContextFileService {
	return &ContextFileService{
		dataDir: utils.Getenv(dataDirEnv, defaultDataDir),
	}
}

func (s *ContextFileService) Startup(ctx context.Context) error {
	s.context = ctx
	return s.Reload()
}

// SetDataDir points the service at a new directory and reloads.
func (s *ContextFileService) SetDataDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("data directory is required")
	}
	if !utils.DirectoryExists(dir) {
		return fmt.Errorf("data directory does not exist: %s", dir)
	}
	s.mu.Lock()
	s.dataDir = dir
	s.mu.Unlock()
	return s.Reload()
}

// Reload re-discovers and re-parses the configured CSV files. Files that fail
// to parse are reported as warnings and skipped; the remaining files still
// load.
func (s *ContextFileService) Reload() error {
	paths, err := s.discoverPaths()
	if err != nil {
		return err
	}

	loaded := make([]loadedContextFile, 0, len(paths))
	for _, path := range paths {
		file, parseErr := parseContextFile(path)
		if parseErr != nil {
			if s.context != nil {
				evt := events.NewWarn(fmt.Sprintf("Skipping context file %s: %v", path, parseErr))
				events.Emit(s.context, events.ChatEventLog, evt)
			}
			continue
		}
		loaded = append(loaded, *file)
	}

	s.mu.Lock()
	s.loaded = loaded
	s.mu.Unlock()
	return nil
}

// ListContextFiles returns the catalog shown in the UI.
func (s *ContextFileService) ListContextFiles() []models.ContextFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ContextFile, 0, len(s.loaded))
	for _, f := range s.loaded {
		out = append(out, f.meta)
	}
	return out
}

// ContextBlocks returns the markdown blocks injected into the system prompt.
func (s *ContextFileService) ContextBlocks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.loaded))
	for _, f := range s.loaded {
		out = append(out, f.block)
	}
	return out
}

func (s *ContextFileService) discoverPaths() ([]string, error) {
	if explicit := strings.TrimSpace(os.Getenv(contextFilesEnv)); explicit != "" {
		var paths []string
		for _, p := range strings.Split(explicit, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		return paths, nil
	}

	s.mu.RLock()
	dataDir := s.dataDir
	s.mu.RUnlock()

	if !utils.DirectoryExists(dataDir) {
		return nil, nil
	}
	matches, err := filepathx.Glob(filepath.Join(dataDir, "**", "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to discover context files: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func parseContextFile(path string) (*loadedContextFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var (
		preview  strings.Builder
		rowCount int
	)
	preview.WriteString(strings.Join(header, ","))
	preview.WriteString("\n")

	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowCount+1, readErr)
		}
		rowCount++
		if rowCount <= maxPreviewRows {
			preview.WriteString(strings.Join(record, ","))
			preview.WriteString("\n")
		}
	}

	name := filepath.Base(path)
	block := fmt.Sprintf("### %s (%d rows)\n\n```csv\n%s```", name, rowCount, preview.String())
	if rowCount > maxPreviewRows {
		block += fmt.Sprintf("\n(truncated to the first %d rows)", maxPreviewRows)
	}

	return &loadedContextFile{
		meta: models.ContextFile{
			Name:     name,
			Path:     path,
			Columns:  header,
			RowCount: rowCount,
		},
		block: block,
	}, nil
}
