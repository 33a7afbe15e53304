package chunk

import (
	"strconv"
	"strings"
)

// buildCodeChunks turns a ParsedFile into chunks: one per top-level
// function and constant, classes whole when small enough, per-method when
// over the line threshold. The import block is prepended when configured.
func buildCodeChunks(pf *ParsedFile, opts Options) []*Chunk {
	var prefix string
	if opts.PreserveImports && len(pf.Imports) > 0 {
		var b strings.Builder
		for _, imp := range pf.Imports {
			b.WriteString("import '")
			b.WriteString(imp.Target)
			b.WriteString("';\n")
		}
		b.WriteString("\n")
		prefix = b.String()
	}

	var chunks []*Chunk
	for i := range pf.Functions {
		chunks = append(chunks, functionChunk(&pf.Functions[i], "", pf.Language, prefix))
	}
	for i := range pf.Classes {
		chunks = append(chunks, classChunks(&pf.Classes[i], pf.Language, prefix, opts.CodeMaxChunkLines)...)
	}
	for i := range pf.Constants {
		c := &pf.Constants[i]
		chunks = append(chunks, &Chunk{
			Content:   prefix + c.Source,
			Language:  pf.Language,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Metadata: map[string]string{
				"type":     "constant",
				"name":     c.Name,
				"language": pf.Language,
			},
		})
	}
	return chunks
}

func functionChunk(fn *Function, className, language, prefix string) *Chunk {
	md := map[string]string{
		"type":     "function",
		"name":     fn.Name,
		"language": language,
		"params":   fn.Params,
	}
	if className != "" {
		md["type"] = "method"
		md["class"] = className
	}
	if fn.ReturnType != "" {
		md["return_type"] = fn.ReturnType
	}
	if fn.Static {
		md["static"] = "true"
	}
	if fn.Async {
		md["async"] = "true"
	}
	return &Chunk{
		Content:   prefix + fn.Source,
		Language:  language,
		StartLine: fn.StartLine,
		EndLine:   fn.EndLine,
		Metadata:  md,
	}
}

// classChunks emits a class whole when it fits under maxLines, otherwise one
// chunk per method with the class name attached.
func classChunks(cls *Class, language, prefix string, maxLines int) []*Chunk {
	lines := cls.EndLine - cls.StartLine + 1
	if lines <= maxLines || len(cls.Methods) == 0 {
		return []*Chunk{{
			Content:   prefix + cls.Source,
			Language:  language,
			StartLine: cls.StartLine,
			EndLine:   cls.EndLine,
			Metadata: map[string]string{
				"type":     cls.Kind,
				"name":     cls.Name,
				"language": language,
				"methods":  strconv.Itoa(len(cls.Methods)),
			},
		}}
	}

	chunks := make([]*Chunk, 0, len(cls.Methods))
	for i := range cls.Methods {
		ck := functionChunk(&cls.Methods[i], cls.Name, language, prefix)
		chunks = append(chunks, ck)
	}
	return chunks
}
