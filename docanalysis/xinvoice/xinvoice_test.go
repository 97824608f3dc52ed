package xinvoice

import (
	"bytes"
	"compress/zlib"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func readInvoice(t *testing.T) []byte {
	data, err := os.ReadFile("testdata/invoice.xml")
	require.NoError(t, err)

	return data
}

// fakePDF embeds the invoice as a compressed attachment stream.
func fakePDF(t *testing.T, invoice []byte) []byte {
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write(invoice)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var pdf bytes.Buffer
	pdf.WriteString("%PDF-1.7\n1 0 obj\n<< /Length 4 >>\nstream\nBT ET\nendstream\nendobj\n")
	pdf.WriteString("2 0 obj\n<< /Type /EmbeddedFile /Subtype /text#2Fxml /Filter /FlateDecode >>\nstream\r\n")
	pdf.Write(compressed.Bytes())
	pdf.WriteString("\r\nendstream\nendobj\n%%EOF\n")

	return pdf.Bytes()
}

func Test_Scan(t *testing.T) {
	invoice := readInvoice(t)

	tests := []struct {
		name string
		file []byte
	}{
		{name: "plain xml", file: invoice},
		{name: "pdf attachment", file: fakePDF(t, invoice)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := New().Scan(context.Background(), tt.file, "doc-1")
			require.NoError(t, err)

			require.Equal(t, "100", data.Total.String())
			require.Equal(t, "EUR", data.Currency)
			require.Equal(t, "15.97", data.TaxTotal.String())
			require.Equal(t, "Stadtwerke Musterstadt GmbH", data.CounterpartyName)
			require.Equal(t, "Energieweg 1, 12345 Musterstadt, DE", data.CounterpartyAddress)
			require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), *data.Date)
			require.Equal(t, []string{"INV-2024-0042", "PO-7781"}, data.References)
		})
	}
}

func withoutAmounts(t *testing.T) []byte {
	invoice := readInvoice(t)
	invoice = bytes.Replace(invoice, []byte("<ram:GrandTotalAmount>100.00</ram:GrandTotalAmount>"), nil, 1)
	invoice = bytes.Replace(invoice, []byte("<ram:DuePayableAmount>100.00</ram:DuePayableAmount>"), nil, 1)

	return invoice
}

func Test_Scan_UnsupportedFormat(t *testing.T) {
	tests := []struct {
		name string
		file []byte
	}{
		{name: "empty", file: nil},
		{name: "plain pdf", file: []byte("%PDF-1.4\n1 0 obj\n<< >>\nstream\nBT /F1 12 Tf ET\nendstream\nendobj\n%%EOF")},
		{name: "other xml", file: []byte(`<?xml version="1.0"?><Invoice><ID>1</ID></Invoice>`)},
		{name: "invoice without amounts", file: withoutAmounts(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Scan(context.Background(), tt.file, "doc-1")
			require.ErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func Test_Scan_InvalidAmount(t *testing.T) {
	invoice := bytes.Replace(readInvoice(t), []byte("<ram:GrandTotalAmount>100.00"), []byte("<ram:GrandTotalAmount>one hundred"), 1)

	_, err := New().Scan(context.Background(), invoice, "doc-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnsupportedFormat)
}
