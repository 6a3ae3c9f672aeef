package proposal

import (
	"encoding/json"
	"math/big"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/treasury/pkg/common/errs"
	"github.com/meridianpay/treasury/policy"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// validatePayload checks the payload shape for the given type and extracts
// the policy target (destination vault and stated chain).
func validatePayload(t Type, raw json.RawMessage) (policy.Target, error) {
	switch t {
	case TypeCryptoTransfer:
		var p CryptoTransferPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return policy.Target{}, err
		}
		if !addressPattern.MatchString(p.ToAddress) {
			return policy.Target{}, errs.Validation("to_address is not a well-formed address")
		}
		if !addressPattern.MatchString(p.TokenAddress) {
			return policy.Target{}, errs.Validation("token_address is not a well-formed address")
		}
		if _, err := BaseUnits(p.Amount, p.TokenDecimals); err != nil {
			return policy.Target{}, err
		}
		return policy.Target{ChainID: p.ChainID}, nil

	case TypeBankTransfer:
		var p BankTransferPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return policy.Target{}, err
		}
		if p.BeneficiaryName == "" || p.AccountNumber == "" {
			return policy.Target{}, errs.Validation("beneficiary_name and account_number are required")
		}
		if _, err := BaseUnits(p.Amount, nil); err != nil {
			return policy.Target{}, err
		}
		return policy.Target{}, nil

	case TypeSavingsDeposit, TypeSavingsWithdraw:
		var p SavingsPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return policy.Target{}, err
		}
		if !addressPattern.MatchString(p.VaultAddress) {
			return policy.Target{}, errs.Validation("vault_address is not a well-formed address")
		}
		if _, err := BaseUnits(p.Amount, nil); err != nil {
			return policy.Target{}, err
		}
		return policy.Target{VaultAddress: p.VaultAddress, ChainID: p.ChainID}, nil

	default:
		return policy.Target{}, errs.Validation("unknown proposal type %q", t)
	}
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errs.Validation("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.Validation("malformed payload: %v", err)
	}
	return nil
}

// BaseUnits parses a positive decimal amount string into base units. When
// decimals is set, the amount is shifted by that many places first; the
// shifted value must be integral. Floats never enter the pipeline: the
// string goes through decimal straight into a big.Int.
func BaseUnits(amount string, decimals *int32) (*big.Int, error) {
	if amount == "" {
		return nil, errs.Validation("amount is required")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, errs.Validation("amount %q is not numeric", amount)
	}
	if decimals != nil {
		if *decimals < 0 || *decimals > 36 {
			return nil, errs.Validation("token_decimals out of range")
		}
		d = d.Shift(*decimals)
	}
	if !d.IsInteger() {
		return nil, errs.Validation("amount %q does not resolve to whole base units", amount)
	}
	if d.Sign() <= 0 {
		return nil, errs.Validation("amount must be positive")
	}
	return d.BigInt(), nil
}
