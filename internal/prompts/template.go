package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
)

var (
	// actionPattern matches a template action such as {{.Text}} or {{range $i, $f := .Fields}}.
	actionPattern = regexp.MustCompile(`\{\{-?(.*?)-?\}\}`)
	// fieldPattern matches top-level field references inside an action.
	fieldPattern = regexp.MustCompile(`(?:^|[\s(])\.([A-Z][A-Za-z0-9_]*)`)
)

// ExtractVariables returns the sorted, de-duplicated top-level fields a
// template references. "{{range .Fields}}{{.Name}}{{end}} {{.Text}}" returns
// ["Fields", "Name", "Text"].
func ExtractVariables(text string) []string {
	seen := make(map[string]bool)
	vars := []string{}
	for _, action := range actionPattern.FindAllStringSubmatch(text, -1) {
		for _, m := range fieldPattern.FindAllStringSubmatch(action[1], -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				vars = append(vars, m[1])
			}
		}
	}
	sort.Strings(vars)
	return vars
}

// HashText returns a SHA256 hash of the text for change detection.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
