// Package iris qualifies form submissions and notifies sales about them.
package iris

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/agents/internal/adapter/email"
	"github.com/xiaot623/gogo/agents/internal/agent"
	"github.com/xiaot623/gogo/agents/internal/domain"
	"github.com/xiaot623/gogo/agents/internal/policy"
)

// Scorer evaluates the lead scoring policy.
type Scorer interface {
	Evaluate(ctx context.Context, input policy.Input) (*policy.Decision, error)
}

// Options configures the agent.
type Options struct {
	RequiredEnv []string
	From        string
	NotifyTo    string
}

// Agent is the form intake agent.
type Agent struct {
	scorer Scorer
	sender email.Sender
	opts   Options
	newID  func() string
}

var _ agent.Agent = (*Agent)(nil)

// New creates the agent. With a nil sender or no recipient, leads are scored
// but nobody is notified.
func New(scorer Scorer, sender email.Sender, opts Options) *Agent {
	return &Agent{scorer: scorer, sender: sender, opts: opts, newID: uuid.NewString}
}

func (a *Agent) ID() string { return domain.AgentIris }

func (a *Agent) RequiredEnv() []string { return a.opts.RequiredEnv }

// Run scores the submission and sends the notification.
func (a *Agent) Run(ctx context.Context, inv *agent.Invocation) (domain.Payload, error) {
	in, ok := inv.Input.(*domain.IrisInput)
	if !ok {
		return nil, fmt.Errorf("iris: unexpected input %T", inv.Input)
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	decision, err := a.scorer.Evaluate(ctx, policy.Input{
		Budget:       in.Budget,
		TimelineDays: in.TimelineDays,
		Role:         in.Role,
		Company:      in.Company,
		Source:       in.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score lead: %w", err)
	}

	out := &domain.IrisOutput{
		LeadID:  a.newID(),
		Tier:    decision.Tier,
		Score:   decision.Score,
		Reasons: decision.Reasons,
	}

	if a.sender == nil || a.opts.NotifyTo == "" {
		return out, nil
	}
	msg, err := notification(a.opts.From, a.opts.NotifyTo, in, out)
	if err != nil {
		return nil, err
	}
	id, err := a.sender.Send(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to notify: %w", err)
	}
	out.Notified = true
	out.EmailID = id
	return out, nil
}

func validate(in *domain.IrisInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return &domain.ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	if in.Budget < 0 {
		return &domain.ValidationError{Field: "budget", Reason: "must not be negative"}
	}
	if in.TimelineDays < 0 {
		return &domain.ValidationError{Field: "timelineDays", Reason: "must not be negative"}
	}
	return nil
}

var notificationTemplate = template.Must(template.New("lead").Parse(`<h2>New {{.Lead.Tier}} lead ({{.Lead.Score}})</h2>
<ul>
<li><b>Name:</b> {{.In.Name}}</li>
<li><b>Email:</b> {{.In.Email}}</li>
{{- if .In.Company}}
<li><b>Company:</b> {{.In.Company}}</li>
{{- end}}
{{- if .In.Role}}
<li><b>Role:</b> {{.In.Role}}</li>
{{- end}}
{{- if .In.Budget}}
<li><b>Budget:</b> {{printf "%.0f" .In.Budget}}</li>
{{- end}}
{{- if .In.TimelineDays}}
<li><b>Timeline:</b> {{.In.TimelineDays}} days</li>
{{- end}}
</ul>
{{- if .In.Message}}
<p>{{.In.Message}}</p>
{{- end}}
<p>Signals: {{range $i, $r := .Lead.Reasons}}{{if $i}}, {{end}}{{$r}}{{else}}none{{end}}</p>
<p><small>Lead {{.Lead.LeadID}}</small></p>
`))

func notification(from, to string, in *domain.IrisInput, out *domain.IrisOutput) (email.Message, error) {
	var body bytes.Buffer
	if err := notificationTemplate.Execute(&body, struct {
		In   *domain.IrisInput
		Lead *domain.IrisOutput
	}{in, out}); err != nil {
		return email.Message{}, fmt.Errorf("failed to render notification: %w", err)
	}

	subject := fmt.Sprintf("[%s] New lead: %s", strings.ToUpper(out.Tier), in.Name)
	if in.Company != "" {
		subject += " (" + in.Company + ")"
	}
	return email.Message{
		From:    from,
		To:      []string{to},
		Subject: subject,
		HTML:    body.String(),
		ReplyTo: in.Email,
	}, nil
}
