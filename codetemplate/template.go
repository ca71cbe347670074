package codetemplate

import (
	"fmt"
	"strings"
	"time"
)

const (
	// UniqueCodePlaceholder is back-filled with each code's unique code after rendering.
	UniqueCodePlaceholder = "uniqueCode"
	// GroupSeparator is emitted for the <FNC> token.
	GroupSeparator = "\x1d"
	DateLayout     = "060102"
)

const (
	tokenRegistrationNo    = "registrationNo"
	tokenNDC               = "NDC"
	tokenGTIN              = "GTIN"
	tokenBatchNo           = "batchNo"
	tokenManufacturingDate = "manufacturingDate"
	tokenExpiryDate        = "expiryDate"
	tokenFNC               = "<FNC>"
	tokenCRMURL            = "CRMURL"
)

// Context supplies the values a country code structure can reference.
// Everything in it is the same for every code of one (batch, product, level).
type Context struct {
	RegistrationNo    string
	Ndc               string
	Gtin              string
	PackagingLevel    int
	BatchNo           string
	ManufacturingDate time.Time
	ExpiryDate        time.Time
	CrmURL            string
}

// Render expands structure into the base code string. Tokens are separated by "/" when the
// structure contains one, otherwise by whitespace; the output is joined the same way ("/" or nothing).
// Tokens are trimmed. Unknown tokens, including the unique code placeholder, are copied through unchanged.
func Render(structure string, c Context) (string, error) {
	sep := ""
	var tokens []string
	if strings.Contains(structure, "/") {
		sep = "/"
		for _, tok := range strings.Split(structure, "/") {
			tokens = append(tokens, strings.TrimSpace(tok))
		}
	} else {
		tokens = strings.Fields(structure)
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		v, err := renderToken(tok, c)
		if err != nil {
			return "", err
		}
		out = append(out, v)
	}
	return strings.Join(out, sep), nil
}

func renderToken(tok string, c Context) (string, error) {
	switch tok {
	case tokenRegistrationNo:
		return c.RegistrationNo, nil
	case tokenNDC:
		return c.Ndc, nil
	case tokenGTIN:
		g, err := GTIN(c.PackagingLevel, c.Gtin)
		if err != nil {
			return "", fmt.Errorf("render GTIN: %w", err)
		}
		return g, nil
	case tokenBatchNo:
		return c.BatchNo, nil
	case tokenManufacturingDate:
		return c.ManufacturingDate.Format(DateLayout), nil
	case tokenExpiryDate:
		return c.ExpiryDate.Format(DateLayout), nil
	case tokenFNC:
		return GroupSeparator, nil
	case tokenCRMURL:
		return c.CrmURL, nil
	}
	return tok, nil
}

// Fill substitutes every placeholder occurrence in a rendered base with uniqueCode.
func Fill(base string, uniqueCode string) string {
	return strings.ReplaceAll(base, UniqueCodePlaceholder, uniqueCode)
}

// UniqueCode is the composite code stored per row: upper-cased generation id, level digit and pool code.
func UniqueCode(generationId string, level int, poolCode string) string {
	return fmt.Sprintf("%s%d%s", strings.ToUpper(generationId), level, poolCode)
}

// Template renders a structure once and back-fills per code, so GTIN and dates are computed
// a single time per (batch, product, level).
type Template struct {
	base string
}

func Compile(structure string, c Context) (*Template, error) {
	base, err := Render(structure, c)
	if err != nil {
		return nil, err
	}
	return &Template{base: base}, nil
}

func (t *Template) Base() string {
	return t.base
}

func (t *Template) Code(uniqueCode string) string {
	return Fill(t.base, uniqueCode)
}
