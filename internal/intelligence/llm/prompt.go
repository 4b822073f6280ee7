package llm

import (
	"bytes"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

// ──────────────────────────────────────────────────────────────────────────
// Prompt templates
// ──────────────────────────────────────────────────────────────────────────

// MaxPromptInputBytes caps any single document fragment interpolated into a
// prompt. Four kilobytes of abstract or caption text plus the surrounding
// instructions stays well inside every supported model's context window.
const MaxPromptInputBytes = 4 * 1024

// PromptManager holds named prompt templates. Analyzer packages register
// their templates at construction time and render per item.
type PromptManager struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewPromptManager returns an empty manager.
func NewPromptManager() *PromptManager {
	return &PromptManager{templates: make(map[string]*template.Template)}
}

// Register parses and stores a template under name, replacing any previous
// registration.
func (m *PromptManager) Register(name, body string) error {
	if name == "" {
		return appErrors.InvalidParam("template name is required")
	}
	if body == "" {
		return appErrors.InvalidParam("template body is required")
	}
	parsed, err := template.New(name).Funcs(promptFuncMap()).Parse(body)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeInvalidParam, "parse template "+name)
	}
	m.mu.Lock()
	m.templates[name] = parsed
	m.mu.Unlock()
	return nil
}

// MustRegister is Register for compile-time-constant templates; a parse
// failure is a programming error.
func (m *PromptManager) MustRegister(name, body string) {
	if err := m.Register(name, body); err != nil {
		panic(err)
	}
}

// Render executes the named template against data.
func (m *PromptManager) Render(name string, data any) (string, error) {
	m.mu.RLock()
	tmpl, ok := m.templates[name]
	m.mu.RUnlock()
	if !ok {
		return "", appErrors.NotFound("prompt template " + name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", appErrors.Wrap(err, appErrors.CodeInternal, "render template "+name)
	}
	return buf.String(), nil
}

func promptFuncMap() template.FuncMap {
	return template.FuncMap{
		"join":      strings.Join,
		"lower":     strings.ToLower,
		"trimSpace": strings.TrimSpace,
		"truncate":  TruncateForPrompt,
	}
}

// ──────────────────────────────────────────────────────────────────────────
// Input capping
// ──────────────────────────────────────────────────────────────────────────

// TruncateForPrompt cuts text to at most maxBytes bytes without splitting a
// rune, preferring a sentence boundary in the back half of the kept prefix.
// Truncated text gains a marker so the model knows the document continues.
func TruncateForPrompt(maxBytes int, text string) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(text) <= maxBytes {
		return text
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	kept := text[:cut]

	if idx := strings.LastIndexAny(kept, ".!?\n"); idx > len(kept)/2 {
		kept = kept[:idx+1]
	}
	return kept + "\n[...truncated]"
}

// EstimateTokens gives a rough token count for budget checks, assuming about
// four characters per token for the English-dominated content we process.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := utf8.RuneCountInString(text) / 4
	if tokens < 1 {
		return 1
	}
	return tokens
}
