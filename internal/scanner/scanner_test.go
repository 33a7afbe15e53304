package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Result) []string {
	t.Helper()
	var paths []string
	for r := range ch {
		require.NoError(t, r.Err)
		paths = append(paths, r.File.Path)
	}
	return paths
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_SupportedFilesOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "# readme")
	writeFile(t, root, "lib/main.dart", "void main() {}")
	writeFile(t, root, "docs/guide.html", "<html><body>guide</body></html>")
	writeFile(t, root, "app.exe", "binaryish")

	ch, err := New().Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	paths := collect(t, ch)

	assert.ElementsMatch(t, []string{"README.md", "lib/main.dart", "docs/guide.html"}, paths)
}

func TestScan_SkipsExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/a.dart", "class A {}")
	writeFile(t, root, ".git/config.md", "x")
	writeFile(t, root, "node_modules/pkg/readme.md", "x")
	writeFile(t, root, "build/out.dart", "x")

	ch, err := New().Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/a.dart"}, collect(t, ch))
}

func TestScan_RespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.g.dart\n")
	writeFile(t, root, "lib/a.dart", "class A {}")
	writeFile(t, root, "lib/a.g.dart", "generated")
	writeFile(t, root, "generated/b.dart", "class B {}")

	ch, err := New().Scan(context.Background(), Options{Root: root, RespectGitignore: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/a.dart"}, collect(t, ch))
}

func TestScan_NestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/.gitignore", "secret.md\n")
	writeFile(t, root, "sub/secret.md", "hidden")
	writeFile(t, root, "sub/public.md", "visible")
	writeFile(t, root, "secret.md", "top level, not covered by sub rules")

	ch, err := New().Scan(context.Background(), Options{Root: root, RespectGitignore: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub/public.md", "secret.md"}, collect(t, ch))
}

func TestScan_ExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.md", "x")
	writeFile(t, root, "drop.md", "x")

	ch, err := New().Scan(context.Background(), Options{Root: root, ExcludePatterns: []string{"drop.md"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.md"}, collect(t, ch))
}

func TestScan_SkipsBinariesAndOversize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.md", "fine")
	writeFile(t, root, "blob.md", "bin\x00ary")
	writeFile(t, root, "big.md", "aaaaaaaaaaaaaaaaaaaaaaaa")

	ch, err := New().Scan(context.Background(), Options{Root: root, MaxFileSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.md"}, collect(t, ch))
}

func TestScan_RootValidation(t *testing.T) {
	_, err := New().Scan(context.Background(), Options{Root: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)

	root := t.TempDir()
	writeFile(t, root, "plain.md", "x")
	_, err = New().Scan(context.Background(), Options{Root: filepath.Join(root, "plain.md")})
	require.Error(t, err)
}

func TestScan_ContextCancel(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("docs", string(rune('a'+i%26))+".md"), "content")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch, err := New().Scan(ctx, Options{Root: root})
	require.NoError(t, err)
	// Drain: the walk stops early; the channel must still close.
	for range ch {
	}
}
