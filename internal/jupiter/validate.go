package jupiter

import (
	"regexp"
	"strconv"

	"github.com/mr-tron/base58"
)

const maxSlippageBps = 10000

var amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ValidateAddress checks that s decodes to a 32-byte public key.
func ValidateAddress(field, s string) error {
	b, err := base58.Decode(s)
	if err != nil {
		return &ValidationError{Field: field, Value: s, Reason: "not base58"}
	}
	if len(b) != 32 {
		return &ValidationError{Field: field, Value: s, Reason: "decoded length " + strconv.Itoa(len(b)) + ", want 32"}
	}
	return nil
}

// ValidateAmount checks that s is a non-negative decimal number.
func ValidateAmount(s string) error {
	if !amountPattern.MatchString(s) {
		return &ValidationError{Field: "amount", Value: s, Reason: "not a non-negative decimal"}
	}
	return nil
}

// ValidateSlippage checks that bps lies in [0, 10000].
func ValidateSlippage(bps int) error {
	if bps < 0 || bps > maxSlippageBps {
		return &ValidationError{Field: "slippageBps", Value: strconv.Itoa(bps), Reason: "must be between 0 and 10000"}
	}
	return nil
}
