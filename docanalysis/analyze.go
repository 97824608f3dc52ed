package docanalysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/process"
)

// ErrAnalysisInProgress is returned by Analyze when the document is linked to an unfinished instance.
var ErrAnalysisInProgress = errors.New("analysis already in progress")

// Engine is the part of the process engine used to start analyses.
type Engine interface {
	Start(ctx context.Context, def *process.Definition, vars core.Variables) (*core.Instance, error)
	GetInstance(ctx context.Context, instanceID string) (*core.Instance, error)

	// TenantID returns the tenant the engine resolves for ctx.
	TenantID(ctx context.Context) (string, error)
}

// Analyze starts an analysis of the document and links the document to the new instance.
func Analyze(ctx context.Context, e Engine, docs DocumentRepository, def *process.Definition, documentID string) (*core.Instance, error) {
	tenantID, err := e.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := docs.Get(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", documentID, err)
	}

	if doc.ProcessInstanceID != "" {
		linked, err := e.GetInstance(ctx, doc.ProcessInstanceID)
		switch {
		case err == nil && !linked.Status.Terminal():
			return linked, fmt.Errorf("document %s: %w", documentID, ErrAnalysisInProgress)
		case err != nil && !errors.Is(err, backend.ErrInstanceNotFound):
			return nil, fmt.Errorf("checking linked instance: %w", err)
		}
	}

	instance, err := e.Start(ctx, def, core.Variables{VarDocumentID: documentID})
	if err != nil {
		return instance, err
	}

	// Steps have saved the document in the meantime
	doc, err = docs.Get(ctx, instance.TenantID, documentID)
	if err != nil {
		return instance, fmt.Errorf("reloading document %s: %w", documentID, err)
	}

	doc.ProcessInstanceID = instance.ID
	if err := docs.Save(ctx, doc); err != nil {
		return instance, fmt.Errorf("linking document %s: %w", documentID, err)
	}

	return instance, nil
}
