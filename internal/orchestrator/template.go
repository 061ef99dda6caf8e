package orchestrator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	defaultLanguage      = "javascript"
	defaultTestFramework = "jest"

	contextPlaceholder = "{{context}}"
)

// template holds the per-run placeholder values. Every placeholder is
// replaced in a single pass, so a value that itself contains a placeholder
// is never expanded again.
type template struct {
	vars    map[string]string
	context string
}

func newTemplate(variables map[string]string, context string) *template {
	vars := make(map[string]string, len(variables)+3)
	for k, v := range variables {
		vars[k] = v
	}
	if vars["language"] == "" {
		vars["language"] = defaultLanguage
	}
	if vars["test_framework"] == "" {
		vars["test_framework"] = defaultTestFramework
	}
	vars["context"] = context
	delete(vars, "previous_output")
	return &template{vars: vars, context: context}
}

// render substitutes all placeholders in prompt. On the first step the
// context is prefixed when the prompt does not place it itself.
func (t *template) render(prompt, previous string, first bool) string {
	keys := make([]string, 0, len(t.vars))
	for k := range t.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys)+2)
	pairs = append(pairs, "{{previous_output}}", previous)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", t.vars[k])
	}

	rendered := strings.NewReplacer(pairs...).Replace(prompt)
	if first && t.context != "" && !strings.Contains(prompt, contextPlaceholder) {
		rendered = "Context:\n" + t.context + "\n\n" + rendered
	}
	return rendered
}

// readContext reads path inside the context directory. Absolute paths and
// paths leaving the directory, including through symlinks, are refused.
func (o *Orchestrator) readContext(path string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsLocal(path) {
		o.logger.Warn("context file outside context directory, continuing without context", "path", path, "dir", o.contextDir)
		return ""
	}

	root, err := os.OpenRoot(o.contextDir)
	if err != nil {
		o.logger.Warn("context directory unavailable, continuing without context", "dir", o.contextDir, "error", err)
		return ""
	}
	defer root.Close()

	data, err := root.ReadFile(path)
	if err != nil {
		o.logger.Warn("context file unreadable, continuing without context", "path", path, "error", err)
		return ""
	}
	return string(data)
}
