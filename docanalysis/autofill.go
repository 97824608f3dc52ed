package docanalysis

import (
	"slices"
)

const (
	FieldTotal               = "total"
	FieldCurrency            = "currency"
	FieldDocumentDate        = "documentDate"
	FieldCounterpartyName    = "counterpartyName"
	FieldCounterpartyAddress = "counterpartyAddress"
	FieldTaxTotal            = "taxTotal"
	FieldReferences          = "references"
	FieldTags                = "tags"
)

// Autofill copies extracted values into the empty fields of doc. A field that already holds a value is
// never overwritten. tags are only applied when the document has none. The names of the filled fields are
// added to doc.Autofilled and returned.
func Autofill(doc *Document, data *ExtractedData, tags []Tag) []string {
	if data == nil {
		return nil
	}

	var filled []string

	if (doc.Total == nil || doc.Total.IsZero()) && data.Total != nil && !data.Total.IsZero() {
		v := *data.Total
		doc.Total = &v
		filled = append(filled, FieldTotal)
	}

	if doc.Currency == "" && data.Currency != "" {
		doc.Currency = data.Currency
		filled = append(filled, FieldCurrency)
	}

	if (doc.DocumentDate == nil || doc.DocumentDate.IsZero()) && data.Date != nil && !data.Date.IsZero() {
		v := *data.Date
		doc.DocumentDate = &v
		filled = append(filled, FieldDocumentDate)
	}

	if doc.CounterpartyName == "" && data.CounterpartyName != "" {
		doc.CounterpartyName = data.CounterpartyName
		filled = append(filled, FieldCounterpartyName)
	}

	if doc.CounterpartyAddress == "" && data.CounterpartyAddress != "" {
		doc.CounterpartyAddress = data.CounterpartyAddress
		filled = append(filled, FieldCounterpartyAddress)
	}

	if (doc.TaxTotal == nil || doc.TaxTotal.IsZero()) && data.TaxTotal != nil && !data.TaxTotal.IsZero() {
		v := *data.TaxTotal
		doc.TaxTotal = &v
		filled = append(filled, FieldTaxTotal)
	}

	if len(doc.References) == 0 && len(data.References) > 0 {
		doc.References = slices.Clone(data.References)
		filled = append(filled, FieldReferences)
	}

	if len(doc.Tags) == 0 && len(tags) > 0 {
		doc.Tags = slices.Clone(tags)
		filled = append(filled, FieldTags)
	}

	for _, f := range filled {
		if !slices.Contains(doc.Autofilled, f) {
			doc.Autofilled = append(doc.Autofilled, f)
		}
	}

	return filled
}

// ClearAutofilled resets every field written by Autofill, leaving values entered by a person in place.
func ClearAutofilled(doc *Document) {
	for _, f := range doc.Autofilled {
		switch f {
		case FieldTotal:
			doc.Total = nil
		case FieldCurrency:
			doc.Currency = ""
		case FieldDocumentDate:
			doc.DocumentDate = nil
		case FieldCounterpartyName:
			doc.CounterpartyName = ""
		case FieldCounterpartyAddress:
			doc.CounterpartyAddress = ""
		case FieldTaxTotal:
			doc.TaxTotal = nil
		case FieldReferences:
			doc.References = nil
		case FieldTags:
			doc.Tags = nil
		}
	}

	doc.Autofilled = nil
}
