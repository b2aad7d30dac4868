package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestContextFileServiceLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestCSV(t, dir, "sales.csv", "month,revenue\nJan,100\nFeb,200\n")
	writeTestCSV(t, dir, "users.csv", "id,name\n1,Ada\n")

	svc := NewContextFileService()
	if err := svc.Startup(context.Background()); err != nil {
		t.Fatalf("startup failed: %v", err)
	}
	if err := svc.SetDataDir(dir); err != nil {
		t.Fatalf("SetDataDir failed: %v", err)
	}

	files := svc.ListContextFiles()
	if len(files) != 2 {
		t.Fatalf("expected 2 context files, got %d", len(files))
	}
	if files[0].Name != "sales.csv" || files[0].RowCount != 2 {
		t.Fatalf("unexpected first file: %+v", files[0])
	}
	if len(files[1].Columns) != 2 || files[1].Columns[0] != "id" {
		t.Fatalf("unexpected columns: %+v", files[1].Columns)
	}

	blocks := svc.ContextBlocks()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 context blocks, got %d", len(blocks))
	}
	if !strings.Contains(blocks[0], "### sales.csv (2 rows)") {
		t.Fatalf("block missing header: %s", blocks[0])
	}
	if !strings.Contains(blocks[0], "```csv\nmonth,revenue\nJan,100\nFeb,200\n```") {
		t.Fatalf("block missing csv preview: %s", blocks[0])
	}
}

func TestContextFileServiceExplicitFileList(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "metrics.csv", "day,count\nMon,3\n")
	t.Setenv(contextFilesEnv, path+" , ")

	svc := NewContextFileService()
	if err := svc.Startup(context.Background()); err != nil {
		t.Fatalf("startup failed: %v", err)
	}

	files := svc.ListContextFiles()
	if len(files) != 1 {
		t.Fatalf("expected 1 context file, got %d", len(files))
	}
	if files[0].Path != path {
		t.Fatalf("expected path %s, got %s", path, files[0].Path)
	}
}

func TestContextFileServiceSkipsUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	writeTestCSV(t, dir, "good.csv", "a,b\n1,2\n")
	writeTestCSV(t, dir, "empty.csv", "")

	svc := NewContextFileService()
	if err := svc.Startup(context.Background()); err != nil {
		t.Fatalf("startup failed: %v", err)
	}
	if err := svc.SetDataDir(dir); err != nil {
		t.Fatalf("SetDataDir failed: %v", err)
	}

	files := svc.ListContextFiles()
	if len(files) != 1 {
		t.Fatalf("expected the unreadable file to be skipped, got %d files", len(files))
	}
	if files[0].Name != "good.csv" {
		t.Fatalf("unexpected file kept: %s", files[0].Name)
	}
}

func TestContextFileServiceTruncatesLongPreviews(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < maxPreviewRows+10; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	writeTestCSV(t, dir, "long.csv", b.String())

	svc := NewContextFileService()
	if err := svc.Startup(context.Background()); err != nil {
		t.Fatalf("startup failed: %v", err)
	}
	if err := svc.SetDataDir(dir); err != nil {
		t.Fatalf("SetDataDir failed: %v", err)
	}

	files := svc.ListContextFiles()
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].RowCount != maxPreviewRows+10 {
		t.Fatalf("expected full row count %d, got %d", maxPreviewRows+10, files[0].RowCount)
	}

	block := svc.ContextBlocks()[0]
	if !strings.Contains(block, fmt.Sprintf("(truncated to the first %d rows)", maxPreviewRows)) {
		t.Fatalf("expected truncation note in block: %s", block)
	}
}

func TestContextFileServiceRejectsMissingDir(t *testing.T) {
	svc := NewContextFileService()
	if err := svc.SetDataDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
