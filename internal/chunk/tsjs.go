package chunk

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// tsLanguageFor maps a file extension to its tree-sitter grammar.
func tsLanguageFor(ext string) (*sitter.Language, string) {
	switch ext {
	case ".ts":
		return typescript.GetLanguage(), "typescript"
	case ".tsx":
		return tsx.GetLanguage(), "typescript"
	case ".js", ".jsx":
		return javascript.GetLanguage(), "javascript"
	}
	return nil, ""
}

// ParseTSJS parses a TypeScript or JavaScript file into a ParsedFile using
// tree-sitter. Errors trigger the caller's text fallback.
func ParseTSJS(ctx context.Context, path string, ext string, src []byte) (*ParsedFile, error) {
	lang, langName := tsLanguageFor(ext)
	if lang == nil {
		return nil, fmt.Errorf("chunk: no grammar for %s", ext)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("chunk: parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, fmt.Errorf("chunk: syntax errors in %s", path)
	}

	pf := &ParsedFile{Path: path, Language: langName}
	w := &tsWalker{src: src, pf: pf}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		w.topLevel(root.NamedChild(i))
	}
	return pf, nil
}

type tsWalker struct {
	src []byte
	pf  *ParsedFile
	// lastComment is the most recent sibling comment node, consumed as the
	// doc comment of the declaration immediately below it.
	lastComment *sitter.Node
}

func (w *tsWalker) topLevel(n *sitter.Node) {
	switch n.Type() {
	case "comment":
		w.lastComment = n
		return
	case "import_statement":
		w.addImport(n)
	case "export_statement":
		if src := n.ChildByFieldName("source"); src != nil {
			w.pf.Imports = append(w.pf.Imports, Import{
				Target: trimQuotes(src.Content(w.src)),
				Line:   int(n.StartPoint().Row) + 1,
			})
		}
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			w.declaration(decl, n)
		}
	default:
		w.declaration(n, n)
	}
	w.lastComment = nil
}

func (w *tsWalker) addImport(n *sitter.Node) {
	if src := n.ChildByFieldName("source"); src != nil {
		w.pf.Imports = append(w.pf.Imports, Import{
			Target: trimQuotes(src.Content(w.src)),
			Line:   int(n.StartPoint().Row) + 1,
		})
	}
}

// declaration classifies a top-level declaration node. outer is the node
// whose source slice the chunk should cover (the export wrapper when
// present).
func (w *tsWalker) declaration(n, outer *sitter.Node) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		if fn, ok := w.function(n, outer); ok {
			w.pf.Functions = append(w.pf.Functions, fn)
		}
	case "class_declaration":
		w.class(n, outer, "class")
	case "interface_declaration":
		w.class(n, outer, "interface")
	case "enum_declaration":
		w.class(n, outer, "enum")
	case "lexical_declaration", "variable_declaration", "type_alias_declaration":
		w.constant(n, outer)
	}
}

func (w *tsWalker) function(n, outer *sitter.Node) (Function, bool) {
	name := w.field(n, "name")
	if name == "" {
		return Function{}, false
	}
	doc, docStart, source := w.takeDoc(outer)
	fn := Function{
		Name:       name,
		Params:     trimParens(w.field(n, "parameters")),
		ReturnType: strings.TrimPrefix(w.field(n, "return_type"), ": "),
		Async:      strings.HasPrefix(n.Content(w.src), "async"),
		StartLine:  docStart,
		EndLine:    int(outer.EndPoint().Row) + 1,
		DocComment: doc,
		Source:     source,
	}
	return fn, true
}

func (w *tsWalker) class(n, outer *sitter.Node, kind string) {
	name := w.field(n, "name")
	if name == "" {
		return
	}
	doc, docStart, source := w.takeDoc(outer)
	cls := Class{
		Kind:       kind,
		Name:       name,
		StartLine:  docStart,
		EndLine:    int(outer.EndPoint().Row) + 1,
		DocComment: doc,
		Source:     source,
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.members(&cls, body)
	}
	w.pf.Classes = append(w.pf.Classes, cls)
}

func (w *tsWalker) members(cls *Class, body *sitter.Node) {
	var pending *sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := body.NamedChild(i)
		switch m.Type() {
		case "comment":
			pending = m
			continue
		case "method_definition", "method_signature":
			text := m.Content(w.src)
			fn := Function{
				Name:       w.field(m, "name"),
				Params:     trimParens(w.field(m, "parameters")),
				ReturnType: strings.TrimPrefix(w.field(m, "return_type"), ": "),
				Static:     strings.HasPrefix(text, "static"),
				Async:      strings.Contains(firstLine(text), "async "),
				StartLine:  int(m.StartPoint().Row) + 1,
				EndLine:    int(m.EndPoint().Row) + 1,
				Source:     text,
			}
			if pending != nil && int(pending.EndPoint().Row)+1 >= fn.StartLine-1 {
				fn.DocComment = pending.Content(w.src)
				fn.StartLine = int(pending.StartPoint().Row) + 1
				fn.Source = string(w.src[pending.StartByte():m.EndByte()])
			}
			cls.Methods = append(cls.Methods, fn)
		case "public_field_definition", "field_definition", "property_signature":
			cls.Properties = append(cls.Properties, Property{
				Name: w.field(m, "name"),
				Line: int(m.StartPoint().Row) + 1,
			})
		}
		pending = nil
	}
}

func (w *tsWalker) constant(n, outer *sitter.Node) {
	name := w.field(n, "name")
	if name == "" {
		// lexical_declaration wraps variable_declarator children.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "variable_declarator" {
				name = w.field(c, "name")
				break
			}
		}
	}
	if name == "" {
		return
	}
	_, docStart, source := w.takeDoc(outer)
	w.pf.Constants = append(w.pf.Constants, Constant{
		Name:      name,
		StartLine: docStart,
		EndLine:   int(outer.EndPoint().Row) + 1,
		Source:    source,
	})
}

// takeDoc consumes the pending sibling comment when it sits directly above
// the declaration, returning the comment text, the chunk's start line, and
// the source slice extended upward to include the comment.
func (w *tsWalker) takeDoc(n *sitter.Node) (doc string, startLine int, source string) {
	startLine = int(n.StartPoint().Row) + 1
	c := w.lastComment
	if c == nil || int(c.EndPoint().Row)+1 < startLine-1 {
		return "", startLine, n.Content(w.src)
	}
	w.lastComment = nil
	return c.Content(w.src), int(c.StartPoint().Row) + 1,
		string(w.src[c.StartByte():n.EndByte()])
}

func (w *tsWalker) field(n *sitter.Node, name string) string {
	f := n.ChildByFieldName(name)
	if f == nil {
		return ""
	}
	return f.Content(w.src)
}

func trimQuotes(s string) string {
	return strings.Trim(s, `'"`+"`")
}

func trimParens(s string) string {
	s = strings.TrimPrefix(s, "(")
	return strings.TrimSuffix(s, ")")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
