// Package metadata builds document metadata with detection heuristics for
// source quality and language.
package metadata

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/synthesis-kb/synthesis/internal/store"
)

// StarsVerifiedThreshold is the repository star count at which a community
// source is upgraded to verified.
const StarsVerifiedThreshold = 1000

// officialDomains are vendor documentation hosts.
var officialDomains = map[string]bool{
	"dart.dev": true, "flutter.dev": true, "pub.dev": true,
	"developer.mozilla.org": true, "go.dev": true, "golang.org": true,
	"docs.python.org": true, "nodejs.org": true, "reactjs.org": true,
	"react.dev": true, "typescriptlang.org": true, "developer.apple.com": true,
	"developer.android.com": true, "learn.microsoft.com": true,
	"docs.aws.amazon.com": true, "cloud.google.com": true,
}

// verifiedDomains are curated aggregators.
var verifiedDomains = map[string]bool{
	"stackoverflow.com": true, "github.com": true, "gitlab.com": true,
	"medium.com": true, "dev.to": true, "wikipedia.org": true,
}

var extensionLanguages = map[string]string{
	".dart": "dart", ".ts": "typescript", ".tsx": "typescript",
	".js": "javascript", ".jsx": "javascript", ".go": "go",
	".py": "python", ".rb": "ruby", ".rs": "rust", ".java": "java",
	".kt": "kotlin", ".swift": "swift", ".md": "markdown",
}

// Builder assembles a DocumentMeta fluently. Zero value is usable.
type Builder struct {
	meta store.DocumentMeta
}

func NewBuilder() *Builder {
	return &Builder{}
}

// WithSourceURL records the source and derives source_quality from the host
// unless already set explicitly.
func (b *Builder) WithSourceURL(rawURL string) *Builder {
	b.meta.SourceURL = rawURL
	if b.meta.SourceQuality == "" {
		b.meta.SourceQuality = QualityForURL(rawURL)
	}
	return b
}

func (b *Builder) WithSourceQuality(q store.SourceQuality) *Builder {
	b.meta.SourceQuality = q
	return b
}

// WithFilePath derives the language from the extension unless already set.
func (b *Builder) WithFilePath(path string) *Builder {
	if b.meta.Language == "" {
		b.meta.Language = LanguageForPath(path)
	}
	return b
}

func (b *Builder) WithLanguage(lang string) *Builder {
	b.meta.Language = lang
	return b
}

func (b *Builder) WithDocType(t string) *Builder {
	b.meta.DocType = t
	return b
}

func (b *Builder) WithFramework(name, version string) *Builder {
	b.meta.Framework = name
	b.meta.FrameworkVersion = version
	return b
}

func (b *Builder) WithLastVerified(t time.Time) *Builder {
	b.meta.LastVerified = &t
	return b
}

// WithStars records the repo star count; a well-starred community source is
// upgraded to verified.
func (b *Builder) WithStars(stars int) *Builder {
	b.meta.Stars = stars
	if stars >= StarsVerifiedThreshold &&
		(b.meta.SourceQuality == "" || b.meta.SourceQuality == store.QualityCommunity) {
		b.meta.SourceQuality = store.QualityVerified
	}
	return b
}

func (b *Builder) WithTags(tags ...string) *Builder {
	b.meta.Tags = append(b.meta.Tags, tags...)
	return b
}

func (b *Builder) WithEmbedding(provider, model string, dimensions int) *Builder {
	b.meta.EmbeddingProvider = provider
	b.meta.EmbeddingModel = model
	b.meta.EmbeddingDimensions = dimensions
	return b
}

func (b *Builder) WithExtra(key, value string) *Builder {
	if b.meta.Extra == nil {
		b.meta.Extra = make(map[string]string)
	}
	b.meta.Extra[key] = value
	return b
}

// Build closes the record, applying defaults for anything undetected:
// community quality, tutorial doc type, and the documentation embedding
// route.
func (b *Builder) Build() store.DocumentMeta {
	m := b.meta
	if m.SourceQuality == "" {
		m.SourceQuality = store.QualityCommunity
	}
	if m.DocType == "" {
		m.DocType = "tutorial"
	}
	if m.EmbeddingProvider == "" {
		m.EmbeddingProvider = "ollama"
		m.EmbeddingModel = "nomic-embed-text"
		m.EmbeddingDimensions = 768
	}
	return m
}

// QualityForURL grades a source URL by host: vendor documentation is
// official, curated aggregators are verified, everything else community.
func QualityForURL(rawURL string) store.SourceQuality {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return store.QualityCommunity
	}
	host := strings.ToLower(u.Hostname())
	for h := host; h != ""; {
		if officialDomains[h] {
			return store.QualityOfficial
		}
		if verifiedDomains[h] {
			return store.QualityVerified
		}
		i := strings.Index(h, ".")
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return store.QualityCommunity
}

// LanguageForPath maps a file extension to a language name, empty when
// unknown.
func LanguageForPath(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}
