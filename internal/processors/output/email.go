package output

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/outputs/email"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

const defaultDigestTemplate = `# Relay cycle {{.Cycle.ID}}

Pipeline **{{.Cycle.PipelineID}}** finished with status **{{.Cycle.Status}}**.

| read | new | relayed | skipped | failed |
|---|---|---|---|---|
| {{.Cycle.SnapshotSize}} | {{.Cycle.FilteredCount}} | {{.Counts.Relayed}} | {{.Counts.Skipped}} | {{.Counts.Failed}} |
{{if .Cycle.Error}}
Cycle error: {{.Cycle.Error}}
{{end}}{{if .Failed}}
## Failed items
{{range .Failed}}
- {{.Item.Source}}: {{.Reason}}{{end}}
{{end}}`

// digestData is what notification templates are rendered with.
type digestData struct {
	Cycle    *core.Cycle
	Counts   core.CycleCounts
	Relayed  []core.Outcome
	Failed   []core.Outcome
	Outcomes []core.Outcome
}

// EmailProcessor sends a Markdown digest of a cycle, rendered to HTML.
type EmailProcessor struct {
	name      string
	config    config.EmailNotify
	sender    email.Sender
	template  *texttemplate.Template
	converter goldmark.Markdown
}

func NewEmailProcessor(cfg *config.EmailNotify, sender email.Sender) (*EmailProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("email config is required")
	}
	templateText := cfg.Template
	if templateText == "" {
		templateText = defaultDigestTemplate
	}
	tmpl, err := texttemplate.New("email").Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("parse email template failed: %w", err)
	}
	p := &EmailProcessor{
		name:      "email",
		config:    *cfg,
		sender:    sender,
		template:  tmpl,
		converter: newMarkdownConverter(),
	}
	if p.config.On == "" {
		p.config.On = config.NotifyOnRelayed
	}
	return p, nil
}

func (p *EmailProcessor) Name() string {
	return p.name
}

func (p *EmailProcessor) Validate() error {
	if p.sender == nil {
		return fmt.Errorf("email sender is required")
	}
	if p.config.To == "" || p.config.Subject == "" {
		return fmt.Errorf("email to and subject are required")
	}
	return nil
}

// Notify sends the digest when the cycle matches the configured policy.
func (p *EmailProcessor) Notify(ctx context.Context, cycle *core.Cycle) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("email processor validation failed: %w", err)
	}
	if !p.shouldNotify(cycle) {
		return nil
	}
	body, err := p.render(cycle)
	if err != nil {
		return err
	}
	return p.sender.Send(ctx, email.Message{
		From:    p.config.From,
		To:      p.config.To,
		Subject: p.config.Subject,
		Body:    body,
		Headers: map[string]string{
			email.HeaderPipeline: cycle.PipelineID,
			email.HeaderCycle:    cycle.ID,
		},
	})
}

func (p *EmailProcessor) shouldNotify(cycle *core.Cycle) bool {
	if cycle == nil {
		return false
	}
	counts := cycle.Counts()
	switch p.config.On {
	case config.NotifyOnAlways:
		return true
	case config.NotifyOnFailure:
		return cycle.Status == core.CycleStatusFailed || counts.Failed > 0
	default:
		return counts.Relayed > 0
	}
}

func (p *EmailProcessor) render(cycle *core.Cycle) (string, error) {
	data := digestData{
		Cycle:    cycle,
		Counts:   cycle.Counts(),
		Outcomes: cycle.Outcomes,
	}
	for _, outcome := range cycle.Outcomes {
		switch outcome.Status {
		case core.OutcomeRelayed:
			data.Relayed = append(data.Relayed, outcome)
		case core.OutcomeFailed:
			data.Failed = append(data.Failed, outcome)
		}
	}

	var markdown strings.Builder
	if err := p.template.Execute(&markdown, data); err != nil {
		return "", fmt.Errorf("execute email template failed: %w", err)
	}
	var html bytes.Buffer
	if err := p.converter.Convert([]byte(markdown.String()), &html); err != nil {
		return "", fmt.Errorf("render email markdown failed: %w", err)
	}
	return wrapHTML(p.config.Subject, html.String()), nil
}

var documentTemplate = template.Must(template.New("document").Parse(
	`<!DOCTYPE html><html><head><meta charset="utf-8"><title>{{.Title}}</title></head><body>{{.Body}}</body></html>`))

// wrapHTML embeds rendered Markdown in a minimal document. Body is trusted
// output of goldmark, which omits raw HTML from the template input.
func wrapHTML(title, body string) string {
	var buf bytes.Buffer
	_ = documentTemplate.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body)})
	return buf.String()
}

func newMarkdownConverter() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}
