package codetemplate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// GTINCheckWindow is the number of leading characters the GTIN-14 check digit covers.
	GTINCheckWindow = 13
	// SSCCCheckWindow is the number of leading characters the SSCC check digit covers.
	SSCCCheckWindow = 17
	// SSCCBodyLength is the numeric body between the extension digit and the check digit.
	SSCCBodyLength = 16
	SSCCLength     = SSCCCheckWindow + 1
)

var ErrInvalidDigits = errors.New("invalid check digit input")

// CheckDigit computes the GS1 mod-10 check digit over the first window characters of input.
// Position i (0-based) is weighted 3 when i+1 is odd and 1 otherwise. The result is always 0..9.
func CheckDigit(input string, window int) (int, error) {
	if window <= 0 || len(input) < window {
		return 0, fmt.Errorf("%w: need %d digits, got %q", ErrInvalidDigits, window, input)
	}
	sum := 0
	for i := 0; i < window; i++ {
		c := input[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: non-digit %q at position %d", ErrInvalidDigits, c, i)
		}
		d := int(c - '0')
		if (i+1)%2 == 1 {
			sum += d * 3
		} else {
			sum += d
		}
	}
	return (10 - sum%10) % 10, nil
}

// GTIN prefixes the packaging level digit to payload and returns the first 13 characters with
// their check digit appended.
func GTIN(level int, payload string) (string, error) {
	if level < 0 || level > 9 {
		return "", fmt.Errorf("%w: packaging level %d is not a single digit", ErrInvalidDigits, level)
	}
	window := strconv.Itoa(level) + payload
	cd, err := CheckDigit(window, GTINCheckWindow)
	if err != nil {
		return "", err
	}
	return window[:GTINCheckWindow] + strconv.Itoa(cd), nil
}

// SSCCBase is the numeric body of counter zero: prefix right-padded with zeros to 16 digits.
func SSCCBase(prefix string) (int64, error) {
	if prefix == "" || len(prefix) > SSCCBodyLength-1 {
		return 0, fmt.Errorf("%w: sscc prefix %q", ErrInvalidDigits, prefix)
	}
	padded := prefix + strings.Repeat("0", SSCCBodyLength-len(prefix))
	base, err := strconv.ParseInt(padded, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: sscc prefix %q", ErrInvalidDigits, prefix)
	}
	return base, nil
}

// SSCC builds extension digit + 16-digit body + check digit. body must fit in 16 digits.
func SSCC(extensionDigit int, body int64) (string, error) {
	if extensionDigit < 0 || extensionDigit > 9 {
		return "", fmt.Errorf("%w: extension digit %d", ErrInvalidDigits, extensionDigit)
	}
	b := strconv.FormatInt(body, 10)
	if body < 0 || len(b) > SSCCBodyLength {
		return "", fmt.Errorf("%w: sscc body %d exceeds %d digits", ErrInvalidDigits, body, SSCCBodyLength)
	}
	window := strconv.Itoa(extensionDigit) + strings.Repeat("0", SSCCBodyLength-len(b)) + b
	cd, err := CheckDigit(window, SSCCCheckWindow)
	if err != nil {
		return "", err
	}
	return window + strconv.Itoa(cd), nil
}

// ParseSSCC splits a full code into extension digit and body, verifying length and check digit.
func ParseSSCC(code string) (extensionDigit int, body int64, err error) {
	if len(code) != SSCCLength {
		return 0, 0, fmt.Errorf("%w: sscc %q is not %d characters", ErrInvalidDigits, code, SSCCLength)
	}
	cd, err := CheckDigit(code, SSCCCheckWindow)
	if err != nil {
		return 0, 0, err
	}
	if int(code[SSCCCheckWindow]-'0') != cd {
		return 0, 0, fmt.Errorf("%w: sscc %q check digit mismatch", ErrInvalidDigits, code)
	}
	body, err = strconv.ParseInt(code[1:SSCCCheckWindow], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sscc %q", ErrInvalidDigits, code)
	}
	return int(code[0] - '0'), body, nil
}

// SSCCPlaceholder is the fixed code given to pallet rows before resequencing:
// extension digit + prefix, zero padded, ending in 9999.
func SSCCPlaceholder(extensionDigit int, prefix string) string {
	head := strconv.Itoa(extensionDigit) + prefix
	tail := "9999"
	if room := SSCCLength - len(head); room < len(tail) {
		tail = tail[:max(room, 0)]
	}
	if pad := SSCCLength - len(head) - len(tail); pad > 0 {
		head += strings.Repeat("0", pad)
	}
	return head + tail
}
