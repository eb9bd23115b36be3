package tool

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"go.uber.org/zap"
)

const (
	pptxMaxFileBytes  = 50 * 1024 * 1024
	pptxDefaultCap    = 50000
	pptxHardCeiling   = 200000
)

// PPTXReaderTool extracts slide text from a .pptx file under the workspace
// root. Workspace access goes through an injected WorkspaceSecurity policy
// so rate limiting and symlink-escape checks apply uniformly across
// workspace-scoped readers.
//
// No example repo in the retrieval pack vendors an OOXML/PPTX parsing
// library (see DESIGN.md); PPTX is just a zip of XML parts, so this reader
// is built directly on archive/zip + encoding/xml rather than inventing a
// dependency the ecosystem doesn't actually offer for this format.
type PPTXReaderTool struct {
	security *WorkspaceSecurity
	logger   *zap.Logger
}

func NewPPTXReaderTool(security *WorkspaceSecurity, logger *zap.Logger) *PPTXReaderTool {
	return &PPTXReaderTool{security: security, logger: logger}
}

func (t *PPTXReaderTool) Name() string          { return "read_pptx" }
func (t *PPTXReaderTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *PPTXReaderTool) Description() string {
	return "Extract slide text from a .pptx file under the workspace root."
}

func (t *PPTXReaderTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the .pptx file, relative to the workspace root",
			},
			"max_chars": map[string]interface{}{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum characters to return (default %d, hard ceiling %d)", pptxDefaultCap, pptxHardCeiling),
			},
		},
		"required": []string{"path"},
	}
}

func (t *PPTXReaderTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	relPath, ok := args["path"].(string)
	if !ok || relPath == "" {
		return &Result{Success: false, Error: "missing required parameter: path"}, nil
	}

	maxChars := pptxDefaultCap
	if raw, ok := args["max_chars"].(float64); ok && raw > 0 {
		maxChars = int(raw)
	}
	if maxChars > pptxHardCeiling {
		maxChars = pptxHardCeiling
	}

	if t.security.IsRateLimited() {
		return &Result{Success: false, Error: "rate limit exceeded for workspace file access"}, nil
	}
	if !t.security.IsPathAllowed(relPath) {
		return &Result{Success: false, Error: fmt.Sprintf("path %q is outside the workspace root", relPath)}, nil
	}

	joined := filepath.Join(t.security.rootPath(), relPath)
	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("resolving path: %v", err)}, nil
	}
	if !t.security.IsResolvedPathAllowed(canonical) {
		return &Result{Success: false, Error: t.security.ResolvedPathViolationMessage(canonical)}, nil
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("stat: %v", err)}, nil
	}
	if info.Size() > pptxMaxFileBytes {
		return &Result{Success: false, Error: fmt.Sprintf("file exceeds %d byte cap", pptxMaxFileBytes)}, nil
	}

	t.security.RecordAction()

	type extractResult struct {
		text string
		err  error
	}
	resultCh := make(chan extractResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- extractResult{err: fmt.Errorf("panic extracting pptx: %v", r)}
			}
		}()
		text, err := extractPPTXText(canonical, maxChars)
		resultCh <- extractResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return &Result{Success: false, Error: "extraction cancelled"}, nil
	case r := <-resultCh:
		if r.err != nil {
			return &Result{Success: false, Error: r.err.Error()}, nil
		}
		return &Result{
			Success: true,
			Output:  r.text,
			Metadata: map[string]interface{}{
				"path": relPath,
			},
		}, nil
	}
}

// rootPath exposes WorkspaceSecurity's root for the tool's own path joins.
func (s *WorkspaceSecurity) rootPath() string { return s.root }

// extractPPTXText opens a .pptx (a zip of OOXML parts) and concatenates the
// text runs from each slideN.xml part, in slide order, capped at maxChars
// (character-boundary safe).
func extractPPTXText(path string, maxChars int) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening pptx: %w", err)
	}
	defer zr.Close()

	type slideFile struct {
		index int
		file  *zip.File
	}
	var slides []slideFile
	for _, f := range zr.File {
		name := f.Name
		if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{index: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].index < slides[j].index })

	var b strings.Builder
	for _, s := range slides {
		text, err := extractSlideText(s.file)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "--- Slide %d ---\n%s\n\n", s.index, text)
		if utf8.RuneCountInString(b.String()) > maxChars {
			break
		}
	}

	out := b.String()
	if runes := []rune(out); len(runes) > maxChars {
		out = string(runes[:maxChars]) + "\n[... truncated ...]"
	}
	return out, nil
}

func extractSlideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	// <a:t> text runs can appear at varying nesting depths across shape
	// types; a streaming token scan is simpler and more robust than a
	// strict struct mapping for every shape variant OOXML allows.
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var lines []string
	var cur strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				inText = true
			}
		case xml.CharData:
			if inText {
				cur.Write(el)
			}
		case xml.EndElement:
			if el.Name.Local == "t" {
				inText = false
			}
			if el.Name.Local == "p" && cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return strings.Join(lines, "\n"), nil
}
