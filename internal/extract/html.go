package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
	"github.com/k3a/html2text"

	"github.com/synthesis-kb/synthesis/internal/errors"
)

// extractHTML reduces a page to its main content via readability, then
// converts that to Markdown so the chunker sees heading structure. Either
// stage failing degrades to a plain text strip of the full page.
func (e *Extractor) extractHTML(path string, data []byte) (string, error) {
	return e.HTMLToMarkdown(data, nil, path)
}

// HTMLToMarkdown is the shared HTML reduction used for uploaded .html files
// and fetched web pages. pageURL may be nil for local files.
func (e *Extractor) HTMLToMarkdown(data []byte, pageURL *url.URL, name string) (string, error) {
	article, readErr := readability.FromReader(bytes.NewReader(data), pageURL)
	content := ""
	if readErr != nil {
		e.log.Warn("readability extraction failed, using full page", "source", name, "error", readErr)
	} else {
		content = article.Content
	}
	if strings.TrimSpace(content) == "" {
		content = string(data)
	}

	md, convErr := htmltomarkdown.ConvertString(content)
	if convErr != nil || strings.TrimSpace(md) == "" {
		if convErr != nil {
			e.log.Warn("markdown conversion failed, using text strip", "source", name, "error", convErr)
		}
		md = html2text.HTML2Text(content)
	}

	md = strings.TrimSpace(md)
	if md == "" {
		return "", errors.InvalidInput(fmt.Sprintf("%s contains no extractable text", filepath.Base(name)))
	}

	if readErr == nil && article.Title != "" && !strings.HasPrefix(md, "#") {
		md = "# " + article.Title + "\n\n" + md
	}
	return md, nil
}
