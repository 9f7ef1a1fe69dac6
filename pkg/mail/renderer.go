// Package mail provides the default template renderer and mail transports
// used by the SendEmail step.
package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/template"
)

// TemplateRenderer renders stored body templates and inline subject
// templates with subscriber variables.
type TemplateRenderer struct {
	mu     sync.RWMutex
	bodies map[string]string // template id -> body template
}

// NewTemplateRenderer creates a renderer over the given template bodies.
func NewTemplateRenderer(bodies map[string]string) *TemplateRenderer {
	if bodies == nil {
		bodies = make(map[string]string)
	}

	return &TemplateRenderer{bodies: bodies}
}

// Register stores or replaces a body template.
func (r *TemplateRenderer) Register(templateID, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bodies[templateID] = body
}

// Render resolves the body template and renders subject and body.
func (r *TemplateRenderer) Render(_ context.Context, templateID, subjectTemplate string, variables map[string]any) (*protocol.RenderedEmail, error) {
	r.mu.RLock()
	body, ok := r.bodies[templateID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("template %q not found", templateID)
	}

	subject, err := template.Render(subjectTemplate, variables)
	if err != nil {
		return nil, err
	}

	renderedBody, err := template.Render(body, variables)
	if err != nil {
		return nil, err
	}

	return &protocol.RenderedEmail{Subject: subject, Body: renderedBody}, nil
}
