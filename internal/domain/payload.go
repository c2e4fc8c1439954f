package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Payload is the content of a proposal. Exactly one concrete type exists per
// ProposalType: *TransactionPayload, *BudgetPayload, *CategoryPayload and
// *TransferPayload.
type Payload interface {
	ProposalType() ProposalType
	Validate() error
	Clone() Payload
}

// TransactionPayload proposes a new ledger transaction.
// A nil CategoryID means uncategorized; a nil AccountID means "ledger default".
type TransactionPayload struct {
	Date         string          `json:"date"`
	Type         TransactionType `json:"type"`
	Amount       float64         `json:"amount"`
	CategoryID   *string         `json:"category_id"`
	CategoryName *string         `json:"category_name"`
	AccountID    *string         `json:"account_id"`
	AccountName  *string         `json:"account_name"`
	Description  string          `json:"description"`
	Tags         []string        `json:"tags"`
}

func (p *TransactionPayload) ProposalType() ProposalType { return ProposalTypeTransaction }

func (p *TransactionPayload) Validate() error {
	if err := validDate("date", p.Date); err != nil {
		return err
	}
	if !p.Type.Valid() {
		return Invalid("type", "must be income or expense, got %q", p.Type)
	}
	if p.Amount < 0 {
		return Invalid("amount", "must be non-negative")
	}
	if p.CategoryID != nil && strings.TrimSpace(*p.CategoryID) == "" {
		return Invalid("category_id", "must be null or a category id")
	}
	if p.AccountID != nil && strings.TrimSpace(*p.AccountID) == "" {
		return Invalid("account_id", "must be null or an account id")
	}
	return nil
}

func (p *TransactionPayload) Clone() Payload {
	c := *p
	c.CategoryID = cloneString(p.CategoryID)
	c.CategoryName = cloneString(p.CategoryName)
	c.AccountID = cloneString(p.AccountID)
	c.AccountName = cloneString(p.AccountName)
	c.Tags = append([]string{}, p.Tags...)
	return &c
}

// MandatoryPayment is a fixed monthly obligation deducted before budgeting.
type MandatoryPayment struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// BudgetAllocation is one suggested category limit.
type BudgetAllocation struct {
	CategoryID      string  `json:"category_id"`
	CategoryName    string  `json:"category_name"`
	CategoryColor   string  `json:"category_color"`
	CategoryIcon    string  `json:"category_icon"`
	SuggestedAmount float64 `json:"suggested_amount"`
	HasExisting     bool    `json:"has_existing"`
}

// BudgetPayload proposes a monthly budget plan.
type BudgetPayload struct {
	Month               string             `json:"month"`
	Income              float64            `json:"income"`
	TargetSavings       float64            `json:"target_savings"`
	MandatoryPayments   []MandatoryPayment `json:"mandatory_payments"`
	AvailableForBudgets float64            `json:"available_for_budgets"`
	Allocations         []BudgetAllocation `json:"allocations"`
}

func (p *BudgetPayload) ProposalType() ProposalType { return ProposalTypeBudget }

func (p *BudgetPayload) Validate() error {
	if _, err := time.Parse(monthLayout, p.Month); err != nil {
		return Invalid("month", "must be YYYY-MM, got %q", p.Month)
	}
	if p.Income < 0 {
		return Invalid("income", "must be non-negative")
	}
	if p.TargetSavings < 0 {
		return Invalid("target_savings", "must be non-negative")
	}
	for i, mp := range p.MandatoryPayments {
		if mp.Amount < 0 {
			return Invalid(fmt.Sprintf("mandatory_payments[%d].amount", i), "must be non-negative")
		}
	}
	seen := make(map[string]bool, len(p.Allocations))
	for i, a := range p.Allocations {
		if a.CategoryID == "" {
			return Invalid(fmt.Sprintf("allocations[%d].category_id", i), "is required")
		}
		if seen[a.CategoryID] {
			return Invalid(fmt.Sprintf("allocations[%d].category_id", i), "duplicate category %s", a.CategoryID)
		}
		seen[a.CategoryID] = true
		if a.SuggestedAmount < 0 {
			return Invalid(fmt.Sprintf("allocations[%d].suggested_amount", i), "must be non-negative")
		}
	}
	return nil
}

func (p *BudgetPayload) Clone() Payload {
	c := *p
	c.MandatoryPayments = append([]MandatoryPayment{}, p.MandatoryPayments...)
	c.Allocations = append([]BudgetAllocation{}, p.Allocations...)
	return &c
}

// Plan translates the allocations into the ledger's apply-budget-plan input.
func (p *BudgetPayload) Plan() BudgetPlan {
	plan := BudgetPlan{Month: p.Month, Allocations: make([]BudgetAllocationInput, 0, len(p.Allocations))}
	for _, a := range p.Allocations {
		plan.Allocations = append(plan.Allocations, BudgetAllocationInput{
			CategoryID: a.CategoryID,
			Amount:     a.SuggestedAmount,
		})
	}
	return plan
}

// TransferPayload proposes moving money between two accounts.
type TransferPayload struct {
	Date            string  `json:"date"`
	Amount          float64 `json:"amount"`
	FromAccountID   string  `json:"from_account_id"`
	FromAccountName string  `json:"from_account_name"`
	ToAccountID     string  `json:"to_account_id"`
	ToAccountName   string  `json:"to_account_name"`
	Description     string  `json:"description"`
}

func (p *TransferPayload) ProposalType() ProposalType { return ProposalTypeTransfer }

func (p *TransferPayload) Validate() error {
	if err := validDate("date", p.Date); err != nil {
		return err
	}
	if p.Amount <= 0 {
		return Invalid("amount", "must be positive")
	}
	if p.FromAccountID == "" {
		return Invalid("from_account_id", "is required")
	}
	if p.ToAccountID == "" {
		return Invalid("to_account_id", "is required")
	}
	if p.FromAccountID == p.ToAccountID {
		return Invalid("to_account_id", "must differ from from_account_id")
	}
	return nil
}

func (p *TransferPayload) Clone() Payload {
	c := *p
	return &c
}

// DecodePayload parses raw JSON into the payload type matching t.
// Unknown fields are rejected so a typo in a revision never silently drops data.
func DecodePayload(t ProposalType, raw []byte) (Payload, error) {
	var p Payload
	switch t {
	case ProposalTypeTransaction:
		p = &TransactionPayload{}
	case ProposalTypeBudget:
		p = &BudgetPayload{}
	case ProposalTypeCategory:
		p = &CategoryPayload{}
	case ProposalTypeTransfer:
		p = &TransferPayload{}
	default:
		return nil, Invalid("proposal_type", "unknown proposal type %q", t)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, Invalid("payload", "%v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func validDate(field, value string) error {
	if _, err := time.Parse(dateLayout, value); err != nil {
		return Invalid(field, "must be YYYY-MM-DD, got %q", value)
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
