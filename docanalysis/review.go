package docanalysis

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/step"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

type Decision string

const (
	DecisionConfirm   Decision = "confirm"
	DecisionReanalyze Decision = "reanalyze"
	DecisionManual    Decision = "manual"
)

const dateLayout = "2006-01-02"

// ReviewSubmission is the input of the review step. Only fields present in the submission are written to
// the document.
type ReviewSubmission struct {
	DocumentID string   `mapstructure:"documentId"`
	Confirmed  bool     `mapstructure:"confirmed"`
	Action     Decision `mapstructure:"action"`

	Total               *decimal.Decimal `mapstructure:"total"`
	Currency            *string          `mapstructure:"currency"`
	DocumentDate        *time.Time       `mapstructure:"documentDate"`
	CounterpartyName    *string          `mapstructure:"counterpartyName"`
	CounterpartyAddress *string          `mapstructure:"counterpartyAddress"`
	TaxTotal            *decimal.Decimal `mapstructure:"taxTotal"`
	References          []string         `mapstructure:"references"`
	Tags                []string         `mapstructure:"tags"`
}

// Decision returns the explicit action, or confirm/manual depending on the confirmation flag.
func (s *ReviewSubmission) Decision() Decision {
	if s.Action != "" {
		return s.Action
	}

	if s.Confirmed {
		return DecisionConfirm
	}

	return DecisionManual
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func stringToDecimalHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}

	switch from.Kind() {
	case reflect.String, reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64, reflect.Int32:
		return decimal.NewFromString(cast.ToString(data))
	}

	return data, nil
}

// DecodeReview decodes a review submission. Values are weakly typed, so form posts with string values
// decode as well as JSON.
func DecodeReview(input step.Input) (*ReviewSubmission, error) {
	raw := map[string]any(input)
	if _, ok := raw["documentId"]; !ok {
		if id, ok := raw["id"]; ok {
			raw = make(map[string]any, len(input)+1)
			for k, v := range input {
				raw[k] = v
			}
			raw["documentId"] = id
		}
	}

	var s ReviewSubmission
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToDecimalHook,
			mapstructure.StringToTimeHookFunc(dateLayout),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &s,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(raw); err != nil {
		return nil, err
	}

	return &s, nil
}

func (a *analysis) validateReview(ctx context.Context, instance *core.Instance, input step.Input) error {
	confirmed, ok := input["confirmed"]
	if !ok {
		return errors.New("confirmed is required")
	}

	if _, err := cast.ToBoolE(confirmed); err != nil {
		return fmt.Errorf("confirmed: %w", err)
	}

	s, err := DecodeReview(input)
	if err != nil {
		return err
	}

	if s.DocumentID == "" {
		return errors.New("documentId is required")
	}

	if s.DocumentID != instance.Variables.String(VarDocumentID) {
		return fmt.Errorf("document %s is not reviewed by this instance", s.DocumentID)
	}

	switch s.Decision() {
	case DecisionConfirm, DecisionReanalyze, DecisionManual:
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}

	return nil
}

func (a *analysis) applyReview(ctx context.Context, instance *core.Instance, input step.Input) error {
	s, err := DecodeReview(input)
	if err != nil {
		return err
	}

	doc, err := a.load(ctx, instance)
	if err != nil {
		return err
	}

	decision := s.Decision()
	switch decision {
	case DecisionConfirm:
		if err := a.applySubmitted(ctx, doc, s); err != nil {
			return err
		}
		doc.Status = StatusFinalized

	case DecisionManual:
		if err := a.applySubmitted(ctx, doc, s); err != nil {
			return err
		}
		doc.Status = StatusManual

	case DecisionReanalyze:
		ClearAutofilled(doc)
		doc.Status = StatusNew
		doc.ProcessInstanceID = ""
	}

	if err := a.save(ctx, doc); err != nil {
		return err
	}

	instance.Variables[VarReviewDecision] = string(decision)

	return nil
}

// applySubmitted overwrites the document fields present in the submission.
func (a *analysis) applySubmitted(ctx context.Context, doc *Document, s *ReviewSubmission) error {
	if s.Total != nil {
		doc.Total = s.Total
	}

	if s.Currency != nil {
		doc.Currency = *s.Currency
	}

	if s.DocumentDate != nil {
		doc.DocumentDate = s.DocumentDate
	}

	if s.CounterpartyName != nil {
		doc.CounterpartyName = *s.CounterpartyName
	}

	if s.CounterpartyAddress != nil {
		doc.CounterpartyAddress = *s.CounterpartyAddress
	}

	if s.TaxTotal != nil {
		doc.TaxTotal = s.TaxTotal
	}

	if s.References != nil {
		doc.References = s.References
	}

	if s.Tags != nil {
		if a.deps.Tags == nil {
			return errors.New("no tag service configured")
		}

		tags, err := a.deps.Tags.FindOrCreate(ctx, doc.TenantID, s.Tags)
		if err != nil {
			return fmt.Errorf("resolving tags: %w", err)
		}

		doc.Tags = tags
	}

	return nil
}
