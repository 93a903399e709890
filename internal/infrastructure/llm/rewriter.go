package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"unicode/utf8"

	"NewsDesk/internal/config"
	"NewsDesk/internal/ports"
)

// ErrEmptyRewrite is returned when the provider answers with blank text.
var ErrEmptyRewrite = errors.New("rewrite produced empty text")

// ErrRewriteTooLong is returned when the answer would not fit into one Telegram message.
var ErrRewriteTooLong = errors.New("rewrite exceeds message limit")

// MaxOutputLength is Telegram's per-message text limit in characters.
const MaxOutputLength = 4096

// DefaultPromptTemplate receives the source text as {{.Text}}.
const DefaultPromptTemplate = `Rewrite the following news item for a Telegram channel.
Paraphrase it in your own words so that it does not copy the source and raises no copyright issues.
Keep every fact, name, number and date. Do not invent anything that is not in the source.
Make it easy to read in Telegram: a short headline, short paragraphs, a few fitting emoji.
Reply with the finished post only.

Source:
{{.Text}}`

// Rewriter caps the input length, renders the prompt and asks the generator for a paraphrase.
type Rewriter struct {
	gen    ports.Generator
	prompt *template.Template
	maxLen int
}

var _ ports.Rewriter = (*Rewriter)(nil)

// NewRewriter parses promptTemplate, falling back to DefaultPromptTemplate when blank.
func NewRewriter(gen ports.Generator, promptTemplate string, maxLen int) (*Rewriter, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if strings.TrimSpace(promptTemplate) == "" {
		promptTemplate = DefaultPromptTemplate
	}

	tmpl, err := template.New("rewrite").Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	return &Rewriter{gen: gen, prompt: tmpl, maxLen: maxLen}, nil
}

// NewGenerator picks the provider client named in the configuration.
func NewGenerator(cfg config.RewriteConfig, client *http.Client) (ports.Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(client, cfg.Endpoint, cfg.Model, cfg.APIKey), nil
	case config.ProviderChatGPT:
		return NewChatGPTClient(client, cfg.Endpoint, cfg.Model, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown rewrite provider %q", cfg.Provider)
	}
}

// Rewrite returns the paraphrased text or an error; it never returns blank text.
func (r *Rewriter) Rewrite(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("nothing to rewrite")
	}

	var prompt bytes.Buffer
	if err := r.prompt.Execute(&prompt, struct{ Text string }{Text: truncate(text, r.maxLen)}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	out, err := r.gen.Generate(ctx, prompt.String())
	if err != nil {
		return "", err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyRewrite
	}
	if n := utf8.RuneCountInString(out); n > MaxOutputLength {
		return "", fmt.Errorf("%w: %d runes", ErrRewriteTooLong, n)
	}
	return out, nil
}

// truncate keeps the first max runes and marks the cut with "...".
func truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "..."
}
