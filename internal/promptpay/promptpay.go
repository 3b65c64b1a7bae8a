// Package promptpay builds EMV merchant-presented QR payloads for the Thai
// PromptPay scheme. The payload is a flat tag-length-value string terminated
// by a CRC16 checksum; any compliant scanner can parse and validate it.
package promptpay

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	tagPayloadFormat  = "00"
	tagInitiation     = "01"
	tagMerchantInfo   = "29"
	tagCategoryCode   = "52"
	tagCurrency       = "53"
	tagAmount         = "54"
	tagCountryCode    = "58"
	tagMerchantName   = "59"
	tagAdditionalData = "62"
	tagChecksum       = "63"
)

const (
	payloadFormatEMV  = "01"
	initiationDynamic = "12" // non-reusable code, amount may be embedded

	// PromptPay application id inside the merchant account template.
	applicationID = "A000000677010111"

	subTagApplicationID = "00"
	subTagMerchantID    = "01"
	subTagRef1          = "01"
	subTagRef2          = "02"

	categoryCodeRetail = "4814"
	currencyTHB        = "764"
	countryTH          = "TH"

	// Free-text fields (merchant name, references) are capped at 25 bytes
	// of UTF-8 by the scheme.
	maxFieldBytes = 25

	merchantIDLength = 13
)

// Merchant identifies the payee embedded in every generated payload.
// ID is a phone number or national-id digit string; anything that is not
// 10 or 13 digits after stripping is zero-padded rather than rejected,
// matching how operators configure it in practice.
type Merchant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Payload renders the complete TLV payload for the given amount and optional
// references. A zero amount produces an amount-unbound code that the payer's
// app fills in. The result is deterministic: identical inputs always yield a
// byte-identical payload.
func (m Merchant) Payload(amount decimal.Decimal, ref1, ref2 string) string {
	var b strings.Builder

	writeTLV(&b, tagPayloadFormat, payloadFormatEMV)
	writeTLV(&b, tagInitiation, initiationDynamic)

	var account strings.Builder
	writeTLV(&account, subTagApplicationID, applicationID)
	writeTLV(&account, subTagMerchantID, NormalizeID(m.ID))
	writeTLV(&b, tagMerchantInfo, account.String())

	writeTLV(&b, tagCategoryCode, categoryCodeRetail)
	writeTLV(&b, tagCurrency, currencyTHB)

	if amount.IsPositive() {
		writeTLV(&b, tagAmount, amount.StringFixed(2))
	}

	writeTLV(&b, tagCountryCode, countryTH)
	writeTLV(&b, tagMerchantName, truncateBytes(m.Name, maxFieldBytes))

	var refs strings.Builder
	if ref1 != "" {
		writeTLV(&refs, subTagRef1, truncateBytes(ref1, maxFieldBytes))
	}
	if ref2 != "" {
		writeTLV(&refs, subTagRef2, truncateBytes(ref2, maxFieldBytes))
	}
	if refs.Len() > 0 {
		writeTLV(&b, tagAdditionalData, refs.String())
	}

	// The CRC covers everything emitted so far including the "6304" header
	// but not the checksum digits themselves.
	b.WriteString(tagChecksum)
	b.WriteString("04")

	payload := b.String()
	return payload + fmt.Sprintf("%04X", checksum([]byte(payload)))
}

// NormalizeID turns a raw merchant identifier into the 13-digit form the
// scheme embeds: non-digits stripped, a 10-digit local mobile number rewritten
// with the 0066 country prefix, a 13-digit national id passed through, and
// anything else right-padded with zeros.
func NormalizeID(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	id := digits.String()
	switch {
	case len(id) == 10:
		return "0066" + id[1:]
	case len(id) == merchantIDLength:
		return id
	default:
		for len(id) < merchantIDLength {
			id += "0"
		}
		return id
	}
}

// writeTLV appends one tag + 2-digit length + value field. Lengths count
// bytes, not runes, and are zero-padded decimal.
func writeTLV(b *strings.Builder, tag, value string) {
	fmt.Fprintf(b, "%s%02d%s", tag, len(value), value)
}

// truncateBytes caps s at max bytes without splitting a multi-byte code
// point, so the announced length always matches a valid UTF-8 value.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
