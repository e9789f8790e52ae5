package ingestion

import (
	"path/filepath"
	"strings"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/rag"
)

// Metadata defaults applied when a source leaves a field empty.
const (
	DefaultCategory       = "general"
	DefaultContentType    = "informational"
	DefaultTargetAudience = "all"
	DefaultLanguage       = "en"
)

// categoryAliases maps directory names to canonical categories.
var categoryAliases = map[string]string{
	"stone":       "stones",
	"stones":      "stones",
	"gemstones":   "stones",
	"gems":        "stones",
	"care":        "care",
	"cleaning":    "care",
	"maintenance": "care",
	"islamic":     "islamic",
	"religious":   "islamic",
	"hadith":      "islamic",
	"rings":       "jewelry",
	"jewelry":     "jewelry",
	"jewellery":   "jewelry",
	"shipping":    "policies",
	"returns":     "policies",
	"policies":    "policies",
	"faq":         "faq",
}

// contentTypeByCategory gives categories whose articles are not plain
// informational content.
var contentTypeByCategory = map[string]string{
	"islamic":  "islamic",
	"policies": "policy",
	"faq":      "faq",
}

// languageSuffixes maps file name suffixes such as "aqeeq.ar.md" to
// language codes.
var languageSuffixes = map[string]string{
	"ar": "ar",
	"en": "en",
	"fa": "fa",
	"fr": "fr",
}

// InferMetadata returns best-effort metadata for a knowledge base file from
// its path relative to the knowledge base root. The first directory names
// the category, a language suffix before the extension names the language,
// and unknown values fall back to the package defaults.
//
// Supported layouts:
//
//	stones/aqeeq.md              category=stones
//	islamic/aqeeq-virtues.ar.md  category=islamic content_type=islamic language=ar
//	turquoise-care.txt           category=general
func InferMetadata(relPath string) rag.Metadata {
	rel := filepath.ToSlash(relPath)
	m := rag.Metadata{Source: rel}

	if dir, _, ok := strings.Cut(rel, "/"); ok {
		dir = strings.ToLower(dir)
		if canon, known := categoryAliases[dir]; known {
			m.Category = canon
		} else {
			m.Category = dir
		}
	}
	m.ContentType = contentTypeByCategory[m.Category]

	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		if lang, ok := languageSuffixes[strings.ToLower(base[i+1:])]; ok {
			m.Language = lang
		}
	}
	return WithDefaults(m)
}

// WithDefaults fills empty metadata fields with the package defaults.
func WithDefaults(m rag.Metadata) rag.Metadata {
	if m.Category == "" {
		m.Category = DefaultCategory
	}
	if m.ContentType == "" {
		m.ContentType = DefaultContentType
	}
	if m.TargetAudience == "" {
		m.TargetAudience = DefaultTargetAudience
	}
	if m.Language == "" {
		m.Language = DefaultLanguage
	}
	return m
}

// Merge overlays the non-empty fields of override onto base.
func Merge(base, override rag.Metadata) rag.Metadata {
	if override.Category != "" {
		base.Category = override.Category
	}
	if override.ContentType != "" {
		base.ContentType = override.ContentType
	}
	if override.TargetAudience != "" {
		base.TargetAudience = override.TargetAudience
	}
	if override.Language != "" {
		base.Language = override.Language
	}
	if override.Source != "" {
		base.Source = override.Source
	}
	return base
}
