package agent

import (
	"context"
	"strings"
	"time"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/tool"
)

const documentSystemPrompt = `You are a writing assistant for graduate school applications.
Draft the requested document (statement of purpose, email to a professor,
CV section, recommendation letter request) using the conversation and any
research findings in context. Reply with the document text only.`

// DocumentAgent drafts application artifacts: statements of purpose,
// outreach emails, CV sections.
type DocumentAgent struct {
	BaseAgent
}

var _ Agent = (*DocumentAgent)(nil)

// NewDocumentAgent constructs the document agent.
func NewDocumentAgent(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *DocumentAgent {
	fns := append([]func(o *Options){func(o *Options) {
		o.Description = "Drafts statements of purpose, outreach emails, CV sections and other application documents"
	}}, optFns...)
	return &DocumentAgent{BaseAgent: NewBaseAgent("document", m, registry, fns...)}
}

// Process implements Agent.
func (a *DocumentAgent) Process(ctx context.Context, state *core.SessionState) (*core.AgentResponse, error) {
	upd := core.StateUpdate{AgentsCalled: []string{a.Name()}}

	text, err := a.generate(ctx, documentSystemPrompt, state, &upd)
	if err != nil {
		return a.errorResponse(upd, err), nil
	}

	docType := classifyDocument(lastUserMessage(state) + " " + state.CurrentTask + " " + state.Intent)
	doc := core.GeneratedDocument{
		Type:    docType,
		Title:   documentTitle(docType),
		Content: text,
		Created: time.Now().UTC(),
	}
	upd.Documents = []core.GeneratedDocument{doc}

	pad := upd.Scratchpad(a.Name())
	pad["last_document_type"] = docType

	return &core.AgentResponse{
		AgentName:  a.Name(),
		Success:    true,
		Message:    text,
		Data:       map[string]any{"document_type": docType},
		NextAction: core.ActionContinue,
		Update:     upd,
	}, nil
}

func classifyDocument(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "statement of purpose") || strings.Contains(lower, "sop"):
		return "statement_of_purpose"
	case strings.Contains(lower, "email") || strings.Contains(lower, "letter") || strings.Contains(lower, "reach out"):
		return "email"
	case strings.Contains(lower, "cv") || strings.Contains(lower, "resume"):
		return "cv"
	default:
		return "document"
	}
}

func documentTitle(docType string) string {
	switch docType {
	case "statement_of_purpose":
		return "Statement of Purpose"
	case "email":
		return "Outreach Email"
	case "cv":
		return "CV Section"
	default:
		return "Draft"
	}
}
