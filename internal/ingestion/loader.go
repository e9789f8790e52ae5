package ingestion

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// supportedExts are the knowledge base file types LoadDir reads.
var supportedExts = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// frontMatter is the optional YAML header of a knowledge base file:
//
//	---
//	id: aqeeq-benefits
//	title: Aqeeq Stone Benefits
//	category: stones
//	language: en
//	---
type frontMatter struct {
	ID             string `yaml:"id"`
	Title          string `yaml:"title"`
	Category       string `yaml:"category"`
	ContentType    string `yaml:"content_type"`
	TargetAudience string `yaml:"target_audience"`
	Language       string `yaml:"language"`
}

// IsKnowledgeFile reports whether path is a file LoadDir would read.
// Hidden files and unsupported extensions are skipped.
func IsKnowledgeFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return supportedExts[strings.ToLower(filepath.Ext(base))]
}

// LoadDir reads every knowledge file under root, sorted by path. Hidden
// directories are skipped.
func LoadDir(root string) ([]rag.Document, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsKnowledgeFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", root, err)
	}
	sort.Strings(paths)

	docs := make([]rag.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := LoadFile(root, path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadFile reads one knowledge file. root is the knowledge base root used
// to derive the document ID and inferred metadata.
func LoadFile(root, path string) (rag.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: read %s: %w", path, err)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: %s is outside %s: %w", path, root, err)
	}
	return ParseDocument(rel, raw)
}

// ParseDocument builds a document from the contents of the file at rel.
// Front matter overrides inferred values; without a title, the first
// Markdown heading or the file name is used.
func ParseDocument(rel string, raw []byte) (rag.Document, error) {
	fm, body, err := splitFrontMatter(raw)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: %s: %w", rel, err)
	}

	doc := rag.Document{
		ID:   DocumentID(rel),
		Body: strings.TrimSpace(body),
		Metadata: Merge(InferMetadata(rel), rag.Metadata{
			Category:       fm.Category,
			ContentType:    fm.ContentType,
			TargetAudience: fm.TargetAudience,
			Language:       fm.Language,
		}),
		Title: fm.Title,
	}
	if fm.ID != "" {
		doc.ID = fm.ID
	}
	if doc.Title == "" {
		doc.Title, doc.Body = headingTitle(doc.Body)
	}
	if doc.Title == "" {
		doc.Title = titleFromFilename(rel)
	}
	return doc, nil
}

// DocumentID is the ID of the file at rel: its slash path without extension.
func DocumentID(rel string) string {
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

func splitFrontMatter(raw []byte) (frontMatter, string, error) {
	var fm frontMatter
	raw = bytes.TrimPrefix(raw, []byte("\uFEFF"))
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return fm, text, nil
	}
	header, body, ok := strings.Cut(text[len("---\n"):], "\n---")
	if !ok {
		return fm, text, nil
	}
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", fmt.Errorf("front matter: %w", err)
	}
	// Drop the rest of the closing delimiter line.
	if _, rest, found := strings.Cut(body, "\n"); found {
		body = rest
	} else {
		body = ""
	}
	return fm, body, nil
}

// headingTitle returns a leading "# " heading as the title and the body
// without it. Bodies without one are returned unchanged.
func headingTitle(body string) (string, string) {
	first, rest, _ := strings.Cut(body, "\n")
	if t, ok := strings.CutPrefix(strings.TrimSpace(first), "# "); ok {
		return strings.TrimSpace(t), strings.TrimSpace(rest)
	}
	return "", body
}

func titleFromFilename(rel string) string {
	base := filepath.Base(DocumentID(rel))
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
