package tool

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func writeTestPPTX(t *testing.T, path string, slideTexts []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for i, text := range slideTexts {
		w, err := zw.Create(filepathSlideName(i + 1))
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		xmlBody := `<?xml version="1.0"?><p:sld xmlns:p="ns" xmlns:a="ns2"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
		if _, err := w.Write([]byte(xmlBody)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
}

func filepathSlideName(n int) string {
	return "ppt/slides/slide" + itoa(n) + ".xml"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestPPTXReaderTool_ExtractsSlidesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	writeTestPPTX(t, path, []string{"First slide", "Second slide"})

	sec := NewWorkspaceSecurity(dir, 0)
	tool := NewPPTXReaderTool(sec, zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"path": "deck.pptx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.Error)
	}
	if !strings.Contains(res.Output, "First slide") || !strings.Contains(res.Output, "Second slide") {
		t.Fatalf("expected both slide texts, got: %s", res.Output)
	}
	if strings.Index(res.Output, "First slide") > strings.Index(res.Output, "Second slide") {
		t.Fatal("expected slides in order")
	}
}

func TestPPTXReaderTool_RejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	sec := NewWorkspaceSecurity(dir, 0)
	tool := NewPPTXReaderTool(sec, zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"path": "../outside.pptx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for path escaping workspace root")
	}
}

func TestPPTXReaderTool_RejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.pptx")
	writeTestPPTX(t, target, []string{"secret"})

	link := filepath.Join(dir, "link.pptx")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	sec := NewWorkspaceSecurity(dir, 0)
	tool := NewPPTXReaderTool(sec, zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"path": "link.pptx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for symlink escaping workspace root")
	}
}

func TestPPTXReaderTool_RateLimited(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	writeTestPPTX(t, path, []string{"content"})

	sec := NewWorkspaceSecurity(dir, 1)
	tool := NewPPTXReaderTool(sec, zap.NewNop())

	first, err := tool.Execute(context.Background(), map[string]interface{}{"path": "deck.pptx"})
	if err != nil || !first.Success {
		t.Fatalf("expected first call to succeed, got %+v err=%v", first, err)
	}
	second, err := tool.Execute(context.Background(), map[string]interface{}{"path": "deck.pptx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Success {
		t.Fatal("expected second call to be rate limited")
	}
}

func TestExtractPPTXText_TruncatesAtCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	long := strings.Repeat("x", 100)
	writeTestPPTX(t, path, []string{long})

	text, err := extractPPTXText(path, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "truncated") {
		t.Fatalf("expected truncation marker, got: %s", text)
	}
}
