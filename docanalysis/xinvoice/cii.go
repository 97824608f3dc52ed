package xinvoice

import "encoding/xml"

// crossIndustryInvoice maps the parts of a UN/CEFACT Cross Industry Invoice used for extraction. Elements
// are matched by local name, so the namespace prefixes used by the producer do not matter.
type crossIndustryInvoice struct {
	XMLName  xml.Name         `xml:"CrossIndustryInvoice"`
	Document exchangedDoc     `xml:"ExchangedDocument"`
	Trade    tradeTransaction `xml:"SupplyChainTradeTransaction"`
}

type exchangedDoc struct {
	ID        string `xml:"ID"`
	IssueDate struct {
		Value string `xml:"DateTimeString"`
	} `xml:"IssueDateTime"`
}

type tradeTransaction struct {
	Agreement struct {
		BuyerReference string     `xml:"BuyerReference"`
		Seller         tradeParty `xml:"SellerTradeParty"`
	} `xml:"ApplicableHeaderTradeAgreement"`

	Settlement struct {
		Currency  string `xml:"InvoiceCurrencyCode"`
		Summation struct {
			TaxTotal   []amount `xml:"TaxTotalAmount"`
			GrandTotal amount   `xml:"GrandTotalAmount"`
			DuePayable amount   `xml:"DuePayableAmount"`
		} `xml:"SpecifiedTradeSettlementHeaderMonetarySummation"`
	} `xml:"ApplicableHeaderTradeSettlement"`
}

type tradeParty struct {
	Name    string `xml:"Name"`
	Address struct {
		Postcode string `xml:"PostcodeCode"`
		LineOne  string `xml:"LineOne"`
		LineTwo  string `xml:"LineTwo"`
		City     string `xml:"CityName"`
		Country  string `xml:"CountryID"`
	} `xml:"PostalTradeAddress"`
}

type amount struct {
	Value    string `xml:",chardata"`
	Currency string `xml:"currencyID,attr"`
}
