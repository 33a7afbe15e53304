package chunk

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// dartScanner is a hand-written structural scanner for Dart. It does not
// build a full AST; it finds top-level declarations by brace matching while
// skipping strings (single, double, triple-quoted, raw), `${...}`
// interpolation, line comments, and nested block comments.
type dartScanner struct {
	src        []byte
	lineStarts []int
	truncated  bool // a brace or string ran past EOF
}

// ParseDart parses Dart source into a ParsedFile. It returns an error only
// when the file is structurally broken (unbalanced braces, nothing
// recognisable); callers fall back to the text strategy on error.
func ParseDart(path string, src []byte) (*ParsedFile, error) {
	s := &dartScanner{src: src}
	s.indexLines()

	decls, err := s.scanDecls(0, len(src))
	if err != nil {
		return nil, err
	}

	pf := &ParsedFile{Path: path, Language: "dart"}
	for _, d := range decls {
		s.classify(pf, d)
	}
	if s.truncated {
		return nil, fmt.Errorf("dart: unbalanced braces in %s", path)
	}
	if len(pf.Imports) == 0 && len(pf.Functions) == 0 && len(pf.Classes) == 0 &&
		len(pf.Constants) == 0 && pf.PartOf == "" && len(strings.TrimSpace(string(src))) > 0 {
		return nil, fmt.Errorf("dart: no declarations recognised in %s", path)
	}
	return pf, nil
}

func (s *dartScanner) indexLines() {
	s.lineStarts = []int{0}
	for i, b := range s.src {
		if b == '\n' {
			s.lineStarts = append(s.lineStarts, i+1)
		}
	}
}

// lineOf returns the 1-indexed line containing byte offset pos.
func (s *dartScanner) lineOf(pos int) int {
	if pos < 0 {
		pos = 0
	}
	return sort.Search(len(s.lineStarts), func(i int) bool { return s.lineStarts[i] > pos })
}

// dartDecl is one declaration slice found by the scanner.
type dartDecl struct {
	docStart  int // start of the adjacent doc comment, -1 if none
	start     int
	headerEnd int // offset of the terminating '{', '=>', '=', or ';'
	bodyStart int // just after '{', -1 for bodyless declarations
	bodyEnd   int // offset of the matching '}', -1
	end       int // just past the declaration
}

func (d dartDecl) sourceStart() int {
	if d.docStart >= 0 {
		return d.docStart
	}
	return d.start
}

// scanDecls splits src[lo:hi] into declarations. Used both at the top level
// and inside class bodies.
func (s *dartScanner) scanDecls(lo, hi int) ([]dartDecl, error) {
	var decls []dartDecl
	pos := lo
	for pos < hi {
		docStart := -1
		pos = s.skipTrivia(pos, hi, &docStart)
		if pos >= hi {
			break
		}
		d := s.scanDecl(pos, hi)
		d.docStart = docStart
		if d.end <= pos {
			// No forward progress means the scanner is confused.
			return nil, fmt.Errorf("dart: scanner stalled at offset %d", pos)
		}
		decls = append(decls, d)
		pos = d.end
	}
	return decls, nil
}

// skipTrivia advances past whitespace and comments, recording the start of a
// doc comment (`///` run or `/** */`) that sits directly above the next
// declaration. A blank line or an ordinary comment after the doc block
// detaches it.
func (s *dartScanner) skipTrivia(pos, hi int, docStart *int) int {
	newlines := 0
	for pos < hi {
		c := s.src[pos]
		switch {
		case c == '\n':
			newlines++
			if newlines > 1 {
				*docStart = -1
			}
			pos++
		case c == ' ' || c == '\t' || c == '\r':
			pos++
		case c == '/' && pos+2 < hi && s.src[pos+1] == '/' && s.src[pos+2] == '/':
			if *docStart < 0 {
				*docStart = pos
			}
			pos = s.skipLineComment(pos, hi)
			newlines = 0
		case c == '/' && pos+1 < hi && s.src[pos+1] == '/':
			*docStart = -1
			pos = s.skipLineComment(pos, hi)
			newlines = 0
		case c == '/' && pos+1 < hi && s.src[pos+1] == '*':
			if pos+2 < hi && s.src[pos+2] == '*' {
				*docStart = pos
			} else {
				*docStart = -1
			}
			pos = s.skipBlockComment(pos, hi)
			newlines = 0
		default:
			return pos
		}
	}
	return pos
}

// scanDecl reads one declaration starting at start. A declaration ends at a
// top-level ';', or at the '}' matching a top-level '{' body. A '{' after
// '=' or '=>' is a collection literal, not a body.
func (s *dartScanner) scanDecl(start, hi int) dartDecl {
	d := dartDecl{start: start, headerEnd: -1, bodyStart: -1, bodyEnd: -1}
	pos := start
	parens, brackets := 0, 0
	literal := false
	for pos < hi {
		c := s.src[pos]
		switch {
		case c == '\'' || c == '"' || (c == 'r' && pos+1 < hi && (s.src[pos+1] == '\'' || s.src[pos+1] == '"')):
			pos = s.skipString(pos, hi)
			continue
		case c == '/' && pos+1 < hi && s.src[pos+1] == '/':
			pos = s.skipLineComment(pos, hi)
			continue
		case c == '/' && pos+1 < hi && s.src[pos+1] == '*':
			pos = s.skipBlockComment(pos, hi)
			continue
		case c == '(':
			parens++
		case c == ')':
			parens--
		case c == '[':
			brackets++
		case c == ']':
			brackets--
		case c == '=' && parens == 0 && brackets == 0:
			if prev := byteBefore(s.src, pos); prev != '=' && prev != '!' && prev != '<' && prev != '>' {
				if d.headerEnd < 0 {
					d.headerEnd = pos
				}
				literal = true
				if pos+1 < hi && s.src[pos+1] == '>' {
					pos++
				}
			}
		case c == '{':
			if parens == 0 && brackets == 0 && !literal {
				if d.headerEnd < 0 {
					d.headerEnd = pos
				}
				d.bodyStart = pos + 1
				end := s.matchBrace(pos, hi)
				d.bodyEnd = end - 1
				d.end = end
				return d
			}
			pos = s.matchBrace(pos, hi)
			continue
		case c == ';' && parens == 0 && brackets == 0:
			if d.headerEnd < 0 {
				d.headerEnd = pos
			}
			d.end = pos + 1
			return d
		}
		pos++
	}
	if d.headerEnd < 0 {
		d.headerEnd = hi
	}
	d.end = hi
	return d
}

// matchBrace returns the offset just past the '}' matching the '{' at start.
func (s *dartScanner) matchBrace(start, hi int) int {
	depth := 0
	pos := start
	for pos < hi {
		c := s.src[pos]
		switch {
		case c == '\'' || c == '"' || (c == 'r' && pos+1 < hi && (s.src[pos+1] == '\'' || s.src[pos+1] == '"')):
			pos = s.skipString(pos, hi)
			continue
		case c == '/' && pos+1 < hi && s.src[pos+1] == '/':
			pos = s.skipLineComment(pos, hi)
			continue
		case c == '/' && pos+1 < hi && s.src[pos+1] == '*':
			pos = s.skipBlockComment(pos, hi)
			continue
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return pos + 1
			}
		}
		pos++
	}
	s.truncated = true
	return hi
}

// skipString advances past a string literal starting at pos, which may point
// at a leading 'r' for raw strings. Handles triple-quoted strings, escapes,
// and `${...}` interpolation (which can itself contain strings and braces).
func (s *dartScanner) skipString(pos, hi int) int {
	raw := false
	if s.src[pos] == 'r' {
		raw = true
		pos++
	}
	q := s.src[pos]
	triple := pos+2 < hi && s.src[pos+1] == q && s.src[pos+2] == q
	if triple {
		pos += 3
	} else {
		pos++
	}
	for pos < hi {
		c := s.src[pos]
		switch {
		case !raw && c == '\\':
			pos += 2
			continue
		case !raw && c == '$' && pos+1 < hi && s.src[pos+1] == '{':
			pos = s.matchBrace(pos+1, hi)
			continue
		case c == q:
			if !triple {
				return pos + 1
			}
			if pos+2 < hi && s.src[pos+1] == q && s.src[pos+2] == q {
				return pos + 3
			}
		case c == '\n' && !triple:
			// Unterminated single-line string; bail at the newline.
			return pos
		}
		pos++
	}
	s.truncated = true
	return hi
}

func (s *dartScanner) skipLineComment(pos, hi int) int {
	for pos < hi && s.src[pos] != '\n' {
		pos++
	}
	return pos
}

// skipBlockComment handles Dart's nested block comments.
func (s *dartScanner) skipBlockComment(pos, hi int) int {
	depth := 0
	for pos+1 < hi {
		if s.src[pos] == '/' && s.src[pos+1] == '*' {
			depth++
			pos += 2
			continue
		}
		if s.src[pos] == '*' && s.src[pos+1] == '/' {
			depth--
			pos += 2
			if depth == 0 {
				return pos
			}
			continue
		}
		pos++
	}
	s.truncated = true
	return hi
}

func byteBefore(src []byte, pos int) byte {
	if pos == 0 {
		return 0
	}
	return src[pos-1]
}

var quotedTarget = regexp.MustCompile(`['"]([^'"]+)['"]`)

// classify turns a scanned declaration into its ParsedFile entry.
func (s *dartScanner) classify(pf *ParsedFile, d dartDecl) {
	header := normalizeSpace(string(s.src[d.start:d.headerEnd]))
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "import", "export":
		if m := quotedTarget.FindStringSubmatch(header); m != nil {
			pf.Imports = append(pf.Imports, Import{Target: m[1], Line: s.lineOf(d.start)})
		}
		return
	case "part":
		if len(fields) > 1 && fields[1] == "of" {
			pf.PartOf = strings.TrimSuffix(strings.Join(fields[2:], " "), ";")
			if m := quotedTarget.FindStringSubmatch(header); m != nil {
				pf.PartOf = m[1]
			}
			return
		}
		if m := quotedTarget.FindStringSubmatch(header); m != nil {
			pf.Parts = append(pf.Parts, m[1])
		}
		return
	case "library":
		return
	case "typedef":
		pf.Constants = append(pf.Constants, Constant{
			Name:      declName(fields[1:]),
			StartLine: s.lineOf(d.sourceStart()),
			EndLine:   s.lineOf(d.end - 1),
			Source:    string(s.src[d.sourceStart():d.end]),
		})
		return
	}

	if kind, name, ok := classHeader(fields); ok {
		cls := Class{
			Kind:      kind,
			Name:      name,
			StartLine: s.lineOf(d.sourceStart()),
			EndLine:   s.lineOf(d.end - 1),
			Source:    string(s.src[d.sourceStart():d.end]),
		}
		if d.docStart >= 0 {
			cls.DocComment = strings.TrimSpace(string(s.src[d.docStart:d.start]))
		}
		if d.bodyStart >= 0 {
			s.scanMembers(&cls, d.bodyStart, d.bodyEnd)
		}
		pf.Classes = append(pf.Classes, cls)
		return
	}

	if isVarDecl(fields) {
		pf.Constants = append(pf.Constants, Constant{
			Name:      declName(fields),
			StartLine: s.lineOf(d.sourceStart()),
			EndLine:   s.lineOf(d.end - 1),
			Source:    string(s.src[d.sourceStart():d.end]),
		})
		return
	}

	if fn, ok := s.functionFrom(d, ""); ok {
		pf.Functions = append(pf.Functions, fn)
	}
}

// scanMembers fills a class's methods and properties from its body slice.
func (s *dartScanner) scanMembers(cls *Class, lo, hi int) {
	decls, err := s.scanDecls(lo, hi)
	if err != nil {
		return
	}
	for _, d := range decls {
		header := normalizeSpace(string(s.src[d.start:d.headerEnd]))
		fields := strings.Fields(header)
		if len(fields) == 0 {
			continue
		}
		if fn, ok := s.functionFrom(d, cls.Name); ok {
			cls.Methods = append(cls.Methods, fn)
			continue
		}
		if isVarDecl(fields) || d.bodyStart < 0 {
			cls.Properties = append(cls.Properties, Property{
				Name: declName(fields),
				Line: s.lineOf(d.start),
			})
		}
	}
}

// functionFrom parses a declaration as a function, method, getter, or
// constructor. className is empty at the top level.
func (s *dartScanner) functionFrom(d dartDecl, className string) (Function, bool) {
	header := normalizeSpace(string(s.src[d.start:d.headerEnd]))
	fn := Function{
		StartLine: s.lineOf(d.sourceStart()),
		EndLine:   s.lineOf(d.end - 1),
		Source:    string(s.src[d.sourceStart():d.end]),
	}
	if d.docStart >= 0 {
		fn.DocComment = strings.TrimSpace(string(s.src[d.docStart:d.start]))
	}

	fields := strings.Fields(header)
	for len(fields) > 0 && (fields[0] == "static" || fields[0] == "external" ||
		fields[0] == "factory" || strings.HasPrefix(fields[0], "@")) {
		if fields[0] == "static" {
			fn.Static = true
		}
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return fn, false
	}
	rest := strings.Join(fields, " ")

	last := fields[len(fields)-1]
	if last == "async" || last == "async*" || last == "sync*" {
		fn.Async = last != "sync*"
		rest = strings.TrimSpace(strings.TrimSuffix(rest, last))
	}

	// Getter: `Type get name` with no parameter list.
	if gi := strings.Index(rest+" ", " get "); gi >= 0 && !strings.Contains(rest[:gi], "(") {
		after := strings.Fields(rest[gi+5:])
		if len(after) == 1 && isIdentifier(after[0]) {
			fn.Name = after[0]
			fn.ReturnType = strings.TrimSpace(rest[:gi])
			return fn, true
		}
	}

	open := strings.Index(rest, "(")
	if open < 0 {
		return fn, false
	}
	closeIdx := matchingParen(rest, open)
	fn.Params = strings.TrimSpace(rest[open+1 : closeIdx])

	before := strings.Fields(rest[:open])
	if len(before) == 0 {
		return fn, false
	}
	name := before[len(before)-1]
	if i := strings.Index(name, "<"); i > 0 {
		name = name[:i]
	}
	if name == "set" || !isIdentifierPath(name) {
		// Setters: `set name(Type v)`; operator overloads are skipped.
		if name == "set" {
			return fn, false
		}
		if !strings.HasPrefix(name, "operator") {
			return fn, false
		}
	}
	fn.Name = name
	if len(before) > 1 {
		fn.ReturnType = strings.Join(before[:len(before)-1], " ")
	}
	// Constructors have no return type; `ClassName` or `ClassName.named`.
	if className != "" && (name == className || strings.HasPrefix(name, className+".")) {
		fn.ReturnType = ""
	}
	return fn, true
}

func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(s)
}

func classHeader(fields []string) (kind, name string, ok bool) {
	for i, f := range fields {
		switch f {
		case "class", "mixin", "enum", "extension":
			if i+1 < len(fields) {
				name = fields[i+1]
				if j := strings.IndexAny(name, "<{"); j > 0 {
					name = name[:j]
				}
				return f, name, true
			}
		case "(", "=":
			return "", "", false
		}
		if strings.Contains(f, "(") {
			return "", "", false
		}
	}
	return "", "", false
}

func isVarDecl(fields []string) bool {
	switch fields[0] {
	case "const", "final", "var", "late":
		return true
	}
	return false
}

// declName extracts the declared identifier: the last bare identifier of the
// header, which for `const int maxRetries` or `final _cache` is the name.
func declName(fields []string) string {
	for i := len(fields) - 1; i >= 0; i-- {
		f := strings.TrimSuffix(fields[i], ";")
		if isIdentifier(f) {
			return f
		}
	}
	return ""
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// isIdentifierPath allows dotted names such as `ClassName.named`.
func isIdentifierPath(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if !isIdentifier(part) {
			return false
		}
	}
	return true
}

var spaceRun = regexp.MustCompile(`\s+`)

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
