package proposal

import (
	"encoding/json"
	"time"
)

// Type is the closed set of sensitive actions a proposal can request.
type Type string

const (
	TypeCryptoTransfer  Type = "crypto_transfer"
	TypeBankTransfer    Type = "bank_transfer"
	TypeSavingsDeposit  Type = "savings_deposit"
	TypeSavingsWithdraw Type = "savings_withdraw"
)

func (t Type) Valid() bool {
	switch t {
	case TypeCryptoTransfer, TypeBankTransfer, TypeSavingsDeposit, TypeSavingsWithdraw:
		return true
	}
	return false
}

// Status is the proposal state machine: pending -> approved (terminal,
// executable) or pending -> canceled (terminal, inert).
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusCanceled Status = "canceled"
)

// Proposal is a durable, policy-checked record of an intended financial
// action. The payload is opaque to the lifecycle engine and immutable
// after creation.
type Proposal struct {
	ID            string          `json:"id"`
	WorkspaceID   string          `json:"workspace_id"`
	OwnerIdentity string          `json:"owner_identity"`
	Type          Type            `json:"proposal_type"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Dismissed     bool            `json:"dismissed"`
	Message       string          `json:"proposal_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CryptoTransferPayload is the payload for crypto_transfer proposals.
// Amount is a positive decimal string; when TokenDecimals is set the
// amount is human-scale and is shifted to base units during validation.
type CryptoTransferPayload struct {
	ToAddress     string `json:"to_address"`
	TokenAddress  string `json:"token_address"`
	Amount        string `json:"amount"`
	TokenDecimals *int32 `json:"token_decimals,omitempty"`
	ChainID       int64  `json:"chain_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// BankTransferPayload is the payload for bank_transfer proposals.
type BankTransferPayload struct {
	BeneficiaryName string `json:"beneficiary_name"`
	AccountNumber   string `json:"account_number"`
	RoutingNumber   string `json:"routing_number"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason,omitempty"`
}

// SavingsPayload is the payload for savings_deposit and savings_withdraw
// proposals.
type SavingsPayload struct {
	VaultAddress string `json:"vault_address"`
	Amount       string `json:"amount"`
	ChainID      int64  `json:"chain_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}
