// Package xinvoice extracts invoice data from electronic invoices in the UN/CEFACT Cross Industry Invoice
// syntax (ZUGFeRD, Factur-X, XRechnung CII). The XML is found either as the file itself or embedded in a PDF.
package xinvoice

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledgerdocs/procflow/docanalysis"
	"github.com/shopspring/decimal"
)

// ErrUnsupportedFormat is returned when the file contains no Cross Industry Invoice.
var ErrUnsupportedFormat = errors.New("no embedded cross industry invoice found")

const (
	rootElement = "CrossIndustryInvoice"

	// Format code 102 of UN/CEFACT date strings
	dateFormat102 = "20060102"

	// Upper bound for inflated PDF streams
	maxStreamSize = 16 << 20
)

type Extractor struct{}

var _ docanalysis.Extractor = (*Extractor)(nil)

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Scan(ctx context.Context, file []byte, documentID string) (*docanalysis.ExtractedData, error) {
	raw := findInvoice(file)
	if raw == nil {
		return nil, ErrUnsupportedFormat
	}

	var inv crossIndustryInvoice
	if err := xml.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("parsing invoice: %w", err)
	}

	return toExtractedData(&inv)
}

// findInvoice returns the XML of the invoice in file, looking at the file itself and at every
// FlateDecode stream of a PDF.
func findInvoice(file []byte) []byte {
	if raw := cutElement(file); raw != nil {
		return raw
	}

	rest := file
	for {
		start := bytes.Index(rest, []byte("stream"))
		if start < 0 {
			return nil
		}

		rest = rest[start+len("stream"):]
		rest = bytes.TrimLeft(rest, "\r\n")

		end := bytes.Index(rest, []byte("endstream"))
		if end < 0 {
			return nil
		}

		if raw := cutElement(inflate(rest[:end])); raw != nil {
			return raw
		}

		rest = rest[end+len("endstream"):]
	}
}

func inflate(data []byte) []byte {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	defer r.Close()

	// Streams usually carry trailing bytes after the compressed data
	out, _ := io.ReadAll(io.LimitReader(r, maxStreamSize))

	return out
}

// cutElement returns the bytes from the opening to the closing tag of the root element.
func cutElement(data []byte) []byte {
	i := bytes.Index(data, []byte(rootElement))
	if i < 0 {
		return nil
	}

	open := bytes.LastIndexByte(data[:i], '<')
	if open < 0 {
		return nil
	}

	end := bytes.LastIndex(data, []byte(rootElement+">"))
	if end <= i {
		return nil
	}

	return data[open : end+len(rootElement)+1]
}

func toExtractedData(inv *crossIndustryInvoice) (*docanalysis.ExtractedData, error) {
	settlement := inv.Trade.Settlement
	seller := inv.Trade.Agreement.Seller

	data := &docanalysis.ExtractedData{
		Currency:            strings.TrimSpace(settlement.Currency),
		CounterpartyName:    strings.TrimSpace(seller.Name),
		CounterpartyAddress: formatAddress(seller),
	}

	total := settlement.Summation.GrandTotal
	if strings.TrimSpace(total.Value) == "" {
		total = settlement.Summation.DuePayable
	}

	v, err := parseAmount(total.Value)
	if err != nil {
		return nil, fmt.Errorf("grand total: %w", err)
	}

	if v == nil {
		return nil, fmt.Errorf("invoice has no grand total or due payable amount: %w", ErrUnsupportedFormat)
	}
	data.Total = v

	if data.Currency == "" {
		data.Currency = total.Currency
	}

	// The tax total may be given once per currency
	for _, t := range settlement.Summation.TaxTotal {
		if t.Currency != "" && data.Currency != "" && t.Currency != data.Currency {
			continue
		}

		v, err := parseAmount(t.Value)
		if err != nil {
			return nil, fmt.Errorf("tax total: %w", err)
		}

		data.TaxTotal = v
		break
	}

	if d := strings.TrimSpace(inv.Document.IssueDate.Value); d != "" {
		date, err := time.Parse(dateFormat102, d)
		if err != nil {
			return nil, fmt.Errorf("issue date: %w", err)
		}

		data.Date = &date
	}

	for _, ref := range []string{inv.Document.ID, inv.Trade.Agreement.BuyerReference} {
		if ref = strings.TrimSpace(ref); ref != "" {
			data.References = append(data.References, ref)
		}
	}

	return data, nil
}

func parseAmount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}

	return &v, nil
}

func formatAddress(p tradeParty) string {
	a := p.Address

	var parts []string
	for _, s := range []string{a.LineOne, a.LineTwo, strings.TrimSpace(a.Postcode + " " + a.City), a.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, ", ")
}
