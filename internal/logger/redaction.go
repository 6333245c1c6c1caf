package logger

import (
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Mask replaces every redacted value
const Mask = "[REDACTED]"

// rule masks the value group of a match and keeps the label around it.
// A rule without a value group masks the whole match.
type rule struct {
	name string
	re   *regexp.Regexp
}

var defaultRules = []rule{
	{"anthropic_key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{"openai_key", regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`)},
	{"bearer", regexp.MustCompile(`(?i)(bearer\s+)(?P<value>[A-Za-z0-9._~+/=-]+)`)},
	{"key_header", regexp.MustCompile(`(?i)(x-api-key["']?\s*[:=]\s*["']?)(?P<value>[^\s"',]+)`)},
	{"key_field", regexp.MustCompile(`(?i)("(?:api_key|apikey|token|secret|password)"\s*:\s*")(?P<value>[^"]+)`)},
	{"key_env", regexp.MustCompile(`((?:MISTRAL|TRIAD|OPENAI|ANTHROPIC)_API_KEY=)(?P<value>\S+)`)},
	{"url_userinfo", regexp.MustCompile(`(https?://[^:/\s]+:)(?P<value>[^@\s]+)(@)`)},
	{"password", regexp.MustCompile(`(?i)((?:password|passwd|secret)\s*[:=]\s*["']?)(?P<value>[^\s"']+)`)},
}

// Redactor masks credentials in log lines. Besides the built-in rules it
// masks literal secrets registered at startup, such as the configured keys.
type Redactor struct {
	mu      sync.RWMutex
	rules   []rule
	secrets []string
	literal *strings.Replacer
}

// NewRedactor creates a redactor with the built-in rules
func NewRedactor() *Redactor {
	r := &Redactor{rules: append([]rule(nil), defaultRules...)}
	r.literal = strings.NewReplacer()
	return r
}

// AddPattern registers an extra rule. A named group "value" limits the
// mask to that group.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.rules = append(r.rules, rule{name: "custom", re: re})
	r.mu.Unlock()
	return nil
}

// AddSecret masks a literal value wherever it appears. Values shorter than
// eight bytes are ignored.
func (r *Redactor) AddSecret(secret string) {
	if len(secret) < 8 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.secrets {
		if s == secret {
			return
		}
	}
	r.secrets = append(r.secrets, secret)

	// longest first so a key that contains another is masked whole
	sorted := append([]string(nil), r.secrets...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	pairs := make([]string, 0, 2*len(sorted))
	for _, s := range sorted {
		pairs = append(pairs, s, Mask)
	}
	r.literal = strings.NewReplacer(pairs...)
}

// Redact masks sensitive values in s
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.literal.Replace(s)
	for _, rl := range r.rules {
		out = applyRule(rl.re, out)
	}
	return out
}

func applyRule(re *regexp.Regexp, s string) string {
	value := re.SubexpIndex("value")
	if value < 0 {
		return re.ReplaceAllString(s, Mask)
	}
	return re.ReplaceAllStringFunc(s, func(match string) string {
		sub := re.FindStringSubmatchIndex(match)
		start, end := sub[2*value], sub[2*value+1]
		if start < 0 {
			return match
		}
		return match[:start] + Mask + match[end:]
	})
}

// Wrap returns a writer that redacts every line before passing it to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{next: w, redactor: r}
}

type redactingWriter struct {
	next     io.Writer
	redactor *Redactor
}

// Write reports len(p) on success; the masked line may be shorter or longer
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.next, w.redactor.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
