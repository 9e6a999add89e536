package reasoner

import (
	"context"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

// Prompt is the structured input of one reasoning invocation
type Prompt struct {
	Issue        domain.GitHubIssue       `json:"issue"`
	Comments     []domain.Comment         `json:"comments"`
	History      []domain.IterationRecord `json:"history"`
	Instructions string                   `json:"instructions"`
}

// Reasoner decides what to do next. It may call tools from the registry and
// returns free text; the text contains the completion sentinel when the task is done.
type Reasoner interface {
	Run(ctx context.Context, prompt Prompt, tools *Registry) (string, error)
}
