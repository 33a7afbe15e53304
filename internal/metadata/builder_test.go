package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/synthesis-kb/synthesis/internal/store"
)

func TestQualityForURL(t *testing.T) {
	assert.Equal(t, store.QualityOfficial, QualityForURL("https://dart.dev/guides/language"))
	assert.Equal(t, store.QualityOfficial, QualityForURL("https://api.flutter.dev/flutter/widgets"))
	assert.Equal(t, store.QualityVerified, QualityForURL("https://stackoverflow.com/questions/1"))
	assert.Equal(t, store.QualityVerified, QualityForURL("https://github.com/acme/repo"))
	assert.Equal(t, store.QualityCommunity, QualityForURL("https://someblog.example.net/post"))
	assert.Equal(t, store.QualityCommunity, QualityForURL("not a url"))
}

func TestBuilder_Defaults(t *testing.T) {
	m := NewBuilder().Build()
	assert.Equal(t, store.QualityCommunity, m.SourceQuality)
	assert.Equal(t, "tutorial", m.DocType)
	assert.Equal(t, "ollama", m.EmbeddingProvider)
	assert.Equal(t, "nomic-embed-text", m.EmbeddingModel)
	assert.Equal(t, 768, m.EmbeddingDimensions)
}

func TestBuilder_SourceURLDetection(t *testing.T) {
	m := NewBuilder().WithSourceURL("https://flutter.dev/docs").Build()
	assert.Equal(t, store.QualityOfficial, m.SourceQuality)
	assert.Equal(t, "https://flutter.dev/docs", m.SourceURL)
}

func TestBuilder_ExplicitQualityNotOverridden(t *testing.T) {
	m := NewBuilder().
		WithSourceQuality(store.QualityOfficial).
		WithSourceURL("https://random.example.com").
		Build()
	assert.Equal(t, store.QualityOfficial, m.SourceQuality)
}

func TestBuilder_StarsUpgrade(t *testing.T) {
	m := NewBuilder().WithStars(5000).Build()
	assert.Equal(t, store.QualityVerified, m.SourceQuality)

	low := NewBuilder().WithStars(200).Build()
	assert.Equal(t, store.QualityCommunity, low.SourceQuality)

	// Stars never downgrade official.
	official := NewBuilder().
		WithSourceQuality(store.QualityOfficial).
		WithStars(5000).
		Build()
	assert.Equal(t, store.QualityOfficial, official.SourceQuality)
}

func TestBuilder_LanguageFromPath(t *testing.T) {
	m := NewBuilder().WithFilePath("lib/services/auth.dart").Build()
	assert.Equal(t, "dart", m.Language)

	explicit := NewBuilder().WithLanguage("kotlin").WithFilePath("a.dart").Build()
	assert.Equal(t, "kotlin", explicit.Language)
}

func TestBuilder_Fluent(t *testing.T) {
	verified := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := NewBuilder().
		WithDocType("api_reference").
		WithFramework("flutter", "3.22.0").
		WithLastVerified(verified).
		WithTags("widgets", "state").
		WithEmbedding("openai", "text-embedding-3-large", 1536).
		WithExtra("channel", "stable").
		Build()

	assert.Equal(t, "api_reference", m.DocType)
	assert.Equal(t, "flutter", m.Framework)
	assert.Equal(t, "3.22.0", m.FrameworkVersion)
	assert.Equal(t, verified, *m.LastVerified)
	assert.Equal(t, []string{"widgets", "state"}, m.Tags)
	assert.Equal(t, 1536, m.EmbeddingDimensions)
	assert.Equal(t, "stable", m.Extra["channel"])
}
