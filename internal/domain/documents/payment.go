package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"kabala/internal/core/types"
)

// PaymentMethod discriminates the payment union.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCheck        PaymentMethod = "check"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentOther        PaymentMethod = "other"
)

// PaymentDetails is the method-specific part of a payment.
// Implemented by *CashDetails, *CheckDetails, *BankTransferDetails,
// *CreditCardDetails and *OtherDetails.
type PaymentDetails interface {
	Method() PaymentMethod
	Validate() error
}

// Payment is one line of money received. Details always matches Method.
type Payment struct {
	Amount  types.Money
	Date    time.Time
	Details PaymentDetails
}

// Method returns the payment discriminator.
func (p Payment) Method() PaymentMethod {
	if p.Details == nil {
		return ""
	}
	return p.Details.Method()
}

// Validate checks amount and method-specific fields.
func (p Payment) Validate() error {
	if p.Details == nil {
		return errors.New("payment method is required")
	}
	if !p.Amount.IsPositive() {
		return errors.New("payment amount must be positive")
	}
	if err := types.ValidateAmount("payment amount", p.Amount); err != nil {
		return err
	}
	return p.Details.Validate()
}

type paymentJSON struct {
	Method  PaymentMethod   `json:"method"`
	Amount  types.Money     `json:"amount"`
	Date    *time.Time      `json:"date,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// MarshalJSON flattens the union into {"method", "amount", "details"}.
func (p Payment) MarshalJSON() ([]byte, error) {
	out := paymentJSON{Method: p.Method(), Amount: p.Amount}
	if !p.Date.IsZero() {
		d := p.Date
		out.Date = &d
	}
	if p.Details != nil {
		raw, err := json.Marshal(p.Details)
		if err != nil {
			return nil, err
		}
		out.Details = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes details according to method.
func (p *Payment) UnmarshalJSON(data []byte) error {
	var in paymentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var details PaymentDetails
	switch in.Method {
	case PaymentCash:
		details = &CashDetails{}
	case PaymentCheck:
		details = &CheckDetails{}
	case PaymentBankTransfer:
		details = &BankTransferDetails{}
	case PaymentCreditCard:
		details = &CreditCardDetails{}
	case PaymentOther:
		details = &OtherDetails{}
	default:
		return fmt.Errorf("unknown payment method %q", in.Method)
	}

	if len(in.Details) > 0 && string(in.Details) != "null" {
		if err := json.Unmarshal(in.Details, details); err != nil {
			return fmt.Errorf("decode %s details: %w", in.Method, err)
		}
	}

	p.Amount = in.Amount
	p.Details = details
	p.Date = time.Time{}
	if in.Date != nil {
		p.Date = *in.Date
	}
	return nil
}

// Payments is stored as a JSON array.
type Payments []Payment

// Total sums all payment amounts.
func (ps Payments) Total() types.Money {
	sum := types.Zero()
	for _, p := range ps {
		sum = sum.Add(p.Amount)
	}
	return sum
}

var (
	digitsRe = regexp.MustCompile(`^[0-9]+$`)
	last4Re  = regexp.MustCompile(`^[0-9]{4}$`)
)

// CashDetails carries nothing beyond the amount.
type CashDetails struct{}

func (*CashDetails) Method() PaymentMethod { return PaymentCash }
func (*CashDetails) Validate() error       { return nil }

// CheckDetails identifies a cheque by bank, branch, account and cheque number.
type CheckDetails struct {
	BankCode      string     `json:"bankCode"`
	BranchCode    string     `json:"branchCode"`
	AccountNumber string     `json:"accountNumber"`
	CheckNumber   string     `json:"checkNumber"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
}

func (*CheckDetails) Method() PaymentMethod { return PaymentCheck }

func (d *CheckDetails) Validate() error {
	if !digitsRe.MatchString(d.BankCode) || len(d.BankCode) > 3 {
		return errors.New("check bank code must be up to 3 digits")
	}
	if !digitsRe.MatchString(d.BranchCode) || len(d.BranchCode) > 4 {
		return errors.New("check branch code must be up to 4 digits")
	}
	if !digitsRe.MatchString(d.AccountNumber) {
		return errors.New("check account number must be digits")
	}
	if !digitsRe.MatchString(d.CheckNumber) {
		return errors.New("check number must be digits")
	}
	return nil
}

// BankTransferDetails records the paying account and transfer reference.
type BankTransferDetails struct {
	BankCode      string `json:"bankCode,omitempty"`
	BranchCode    string `json:"branchCode,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

func (*BankTransferDetails) Method() PaymentMethod { return PaymentBankTransfer }

func (d *BankTransferDetails) Validate() error {
	if d.BankCode != "" && !digitsRe.MatchString(d.BankCode) {
		return errors.New("bank code must be digits")
	}
	if d.AccountNumber != "" && !digitsRe.MatchString(d.AccountNumber) {
		return errors.New("account number must be digits")
	}
	return nil
}

// CreditCardDealType is how the card charge is split.
type CreditCardDealType string

const (
	DealRegular      CreditCardDealType = "regular"
	DealInstallments CreditCardDealType = "installments"
	DealCredit       CreditCardDealType = "credit"
)

// CreditCardDetails never holds a full card number.
type CreditCardDetails struct {
	CardBrand    string             `json:"cardBrand,omitempty"` // isracard, visa, mastercard, amex, diners
	Last4        string             `json:"last4,omitempty"`
	DealType     CreditCardDealType `json:"dealType"`
	Installments int                `json:"installments,omitempty"`
}

func (*CreditCardDetails) Method() PaymentMethod { return PaymentCreditCard }

func (d *CreditCardDetails) Validate() error {
	if d.Last4 != "" && !last4Re.MatchString(d.Last4) {
		return errors.New("card last4 must be exactly 4 digits")
	}
	switch d.DealType {
	case DealRegular, "":
		if d.Installments > 1 {
			return errors.New("regular deals have a single installment")
		}
	case DealInstallments, DealCredit:
		if d.Installments < 2 || d.Installments > 36 {
			return errors.New("installments must be between 2 and 36")
		}
	default:
		return fmt.Errorf("unknown credit card deal type %q", d.DealType)
	}
	return nil
}

// OtherDetails describes any other payment means.
type OtherDetails struct {
	Description string `json:"description"`
}

func (*OtherDetails) Method() PaymentMethod { return PaymentOther }

func (d *OtherDetails) Validate() error {
	if d.Description == "" {
		return errors.New("description is required for other payments")
	}
	return nil
}
