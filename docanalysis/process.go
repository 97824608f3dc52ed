package docanalysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/log"
	"github.com/ledgerdocs/procflow/process"
	"github.com/ledgerdocs/procflow/step"
)

const ProcessName = "document-analysis"

const (
	StepPrimaryExtraction   = "PrimaryExtraction"
	StepSecondaryExtraction = "SecondaryExtraction"
	StepReview              = "Review"
)

// Instance variables
const (
	VarDocumentID       = "documentId"
	VarPrimarySucceeded = "primaryExtractionSucceeded"
	VarExtractionMethod = "extractionMethod"
	VarReviewDecision   = "reviewDecision"
)

const (
	MethodPrimary   = "primary"
	MethodSecondary = "secondary"
)

type Dependencies struct {
	Blobs     BlobStore
	Documents DocumentRepository
	Tags      TagService

	// Primary is the format-specific extractor, Secondary the general one.
	Primary   Extractor
	Secondary Extractor

	Logger *slog.Logger
	Clock  clock.Clock
}

// NewDefinition builds the document-analysis process. Instances expect the document id in the documentId
// variable.
func NewDefinition(deps Dependencies) *process.Definition {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	a := &analysis{deps: deps}

	return process.New(ProcessName).
		AddStep(step.NewAutomated(StepPrimaryExtraction, a.primaryExtraction)).
		AddStep(step.NewAutomated(StepSecondaryExtraction, a.secondaryExtraction)).
		AddStep(step.NewHuman(StepReview, a.applyReview, step.WithValidation(a.validateReview)))
}

type analysis struct {
	deps Dependencies
}

func (a *analysis) load(ctx context.Context, instance *core.Instance) (*Document, error) {
	id := instance.Variables.String(VarDocumentID)
	if id == "" {
		return nil, fmt.Errorf("%s variable not set", VarDocumentID)
	}

	doc, err := a.deps.Documents.Get(ctx, instance.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", id, err)
	}

	return doc, nil
}

func (a *analysis) save(ctx context.Context, doc *Document) error {
	doc.UpdatedAt = a.deps.Clock.Now()

	if err := a.deps.Documents.Save(ctx, doc); err != nil {
		return fmt.Errorf("saving document %s: %w", doc.ID, err)
	}

	return nil
}

// extract downloads the document's file, scans it and resolves suggested tags. doc is not modified.
func (a *analysis) extract(ctx context.Context, ex Extractor, doc *Document) (*ExtractedData, []Tag, error) {
	if ex == nil {
		return nil, nil, errors.New("no extractor configured")
	}

	file, err := a.deps.Blobs.Download(ctx, doc.FileKey)
	if err != nil {
		return nil, nil, fmt.Errorf("downloading %s: %w", doc.FileKey, err)
	}

	data, err := ex.Scan(ctx, file, doc.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning: %w", err)
	}

	var tags []Tag
	if len(doc.Tags) == 0 && len(data.Tags) > 0 && a.deps.Tags != nil {
		tags, err = a.deps.Tags.FindOrCreate(ctx, doc.TenantID, data.Tags)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving tags: %w", err)
		}
	}

	return data, tags, nil
}

// primaryExtraction tries the format-specific extractor. Extraction problems are not errors here: the
// document goes back to pending and the secondary extraction takes over.
func (a *analysis) primaryExtraction(ctx context.Context, instance *core.Instance) error {
	doc, err := a.load(ctx, instance)
	if err != nil {
		return err
	}

	doc.Status = StatusAnalyzing
	if err := a.save(ctx, doc); err != nil {
		return err
	}

	data, tags, err := a.extract(ctx, a.deps.Primary, doc)
	if err != nil {
		a.deps.Logger.Info(
			"Primary extraction unavailable, falling back",
			log.InstanceIDKey, instance.ID,
			log.DocumentIDKey, doc.ID,
			"error", err,
		)

		instance.Variables[VarPrimarySucceeded] = false
		doc.Status = StatusPending

		return a.save(ctx, doc)
	}

	filled := Autofill(doc, data, tags)
	doc.Status = StatusAnalyzed
	if err := a.save(ctx, doc); err != nil {
		return err
	}

	a.deps.Logger.Debug("Primary extraction succeeded", log.DocumentIDKey, doc.ID, "filled", filled)

	instance.Variables[VarPrimarySucceeded] = true
	instance.Variables[VarExtractionMethod] = MethodPrimary

	return nil
}

// secondaryExtraction runs the general extractor unless the primary extraction already succeeded. Its
// failure fails the process.
func (a *analysis) secondaryExtraction(ctx context.Context, instance *core.Instance) error {
	if instance.Variables.Bool(VarPrimarySucceeded) {
		return nil
	}

	doc, err := a.load(ctx, instance)
	if err != nil {
		return err
	}

	data, tags, err := a.extract(ctx, a.deps.Secondary, doc)
	if err != nil {
		doc.Status = StatusFailed
		if serr := a.save(ctx, doc); serr != nil {
			return errors.Join(fmt.Errorf("secondary extraction: %w", err), serr)
		}

		return fmt.Errorf("secondary extraction: %w", err)
	}

	filled := Autofill(doc, data, tags)
	doc.Status = StatusAnalyzed
	if err := a.save(ctx, doc); err != nil {
		return err
	}

	a.deps.Logger.Debug("Secondary extraction succeeded", log.DocumentIDKey, doc.ID, "filled", filled)

	instance.Variables[VarExtractionMethod] = MethodSecondary

	return nil
}
