package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/synthesis-kb/synthesis/internal/errors"
)

// extractDOCX reads word/document.xml out of the OOXML zip container and
// streams its <w:t> runs, inserting paragraph and tab breaks.
func (e *Extractor) extractDOCX(path string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput,
			fmt.Sprintf("%s is not a valid DOCX archive", filepath.Base(path)))
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.InvalidInput(fmt.Sprintf("%s has no word/document.xml", filepath.Base(path)))
	}

	rc, err := doc.Open()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "open docx document part")
	}
	defer rc.Close()

	text, err := docxText(rc)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput,
			fmt.Sprintf("%s document part is malformed", filepath.Base(path)))
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.InvalidInput(fmt.Sprintf("%s contains no extractable text", filepath.Base(path)))
	}
	return strings.TrimSpace(text), nil
}

// docxText walks the WordprocessingML token stream. Only three elements
// matter for plain text: w:t (a text run), w:p (paragraph end), w:tab.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
