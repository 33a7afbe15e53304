// Package gitignore implements gitignore pattern matching for the
// directory ingest scanner and the file watcher.
//
// Supported syntax (per https://git-scm.com/docs/gitignore):
//   - wildcards (*, ?, **) and character classes
//   - rooted patterns (/build) and directory-only patterns (temp/)
//   - negation (!important.log)
//   - nested .gitignore files scoped to their directory
//
// A root .gitignore is loaded with an empty base; nested files pass
// their directory relative to the scan root:
//
//	m := gitignore.New()
//	m.AddFromFile(filepath.Join(root, ".gitignore"), "")
//	m.AddFromFile(filepath.Join(root, "src", ".gitignore"), "src")
//
//	if m.Match("src/error.log", false) {
//	    // ignored
//	}
//
// Matchers are safe for concurrent use.
package gitignore
