package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/synthesis-kb/synthesis/internal/errors"
)

// extractPDF pulls plain text out of a PDF. Pages that fail to decode are
// skipped with a warning rather than failing the document.
func (e *Extractor) extractPDF(path string, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput,
			fmt.Sprintf("%s is not a readable PDF", filepath.Base(path)))
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.log.Warn("skipping unreadable pdf page", "path", path, "page", i, "error", err)
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		// Fall back to the whole-document reader; some files only yield
		// text this way.
		if r, err := reader.GetPlainText(); err == nil {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, r); err == nil {
				out = strings.TrimSpace(buf.String())
			}
		}
	}
	if out == "" {
		return "", errors.InvalidInput(fmt.Sprintf("%s contains no extractable text", filepath.Base(path)))
	}
	return out, nil
}
