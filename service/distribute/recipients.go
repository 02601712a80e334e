package distribute

import "fmt"

// DistributionMode selects how per-recipient amounts are derived.
type DistributionMode string

const (
	// ModeEqual overwrites every recipient amount with an equal split of
	// the list's total amount.
	ModeEqual DistributionMode = "equal"

	// ModeManual passes stored per-recipient amounts through unchanged.
	ModeManual DistributionMode = "manual"
)

// RecipientList owns the recipient entries, their validity flags, and the
// equal/manual distribution settings. Validity is recomputed on every
// address mutation so it never goes stale across edits. The list is not
// safe for concurrent mutation; the owning layer serializes access.
type RecipientList struct {
	validate    AddressValidator
	recipients  []Recipient
	mode        DistributionMode
	totalAmount float64
}

// NewRecipientList creates an empty list in equal-split mode.
func NewRecipientList(validate AddressValidator) *RecipientList {
	return &RecipientList{
		validate: validate,
		mode:     ModeEqual,
	}
}

// Add appends a recipient with the given address and amount, computing
// its validity flag.
func (l *RecipientList) Add(address string, amount float64) {
	l.recipients = append(l.recipients, Recipient{
		Address: address,
		Amount:  amount,
		IsValid: l.validate(address),
	})
}

// Update replaces the recipient at index, recomputing validity for the
// new address. Returns an error when index is out of range.
func (l *RecipientList) Update(index int, address string, amount float64) error {
	if index < 0 || index >= len(l.recipients) {
		return fmt.Errorf("recipient index %d out of range (len %d)", index, len(l.recipients))
	}
	l.recipients[index] = Recipient{
		Address: address,
		Amount:  amount,
		IsValid: l.validate(address),
	}
	return nil
}

// Remove deletes the recipient at index. Returns an error when index is
// out of range.
func (l *RecipientList) Remove(index int) error {
	if index < 0 || index >= len(l.recipients) {
		return fmt.Errorf("recipient index %d out of range (len %d)", index, len(l.recipients))
	}
	l.recipients = append(l.recipients[:index], l.recipients[index+1:]...)
	return nil
}

// Clear empties the list and resets the total amount.
func (l *RecipientList) Clear() {
	l.recipients = nil
	l.totalAmount = 0
}

// SetMode switches between equal and manual distribution.
func (l *RecipientList) SetMode(mode DistributionMode) {
	l.mode = mode
}

// SetTotalAmount sets the amount split across recipients in equal mode.
func (l *RecipientList) SetTotalAmount(total float64) {
	l.totalAmount = total
}

// Len returns the number of recipients.
func (l *RecipientList) Len() int {
	return len(l.recipients)
}

// Calculated returns the recipients with amounts resolved for the current
// mode: in equal mode every amount is overwritten with the equal split of
// the total, in manual mode stored amounts pass through. The returned
// slice is a copy; callers cannot mutate list state through it.
func (l *RecipientList) Calculated() []Recipient {
	out := make([]Recipient, len(l.recipients))
	copy(out, l.recipients)
	if l.mode == ModeEqual {
		share := CalculateEqualDistribution(l.totalAmount, len(out))
		for i := range out {
			out[i].Amount = share
		}
	}
	return out
}

// Valid returns the calculated recipients that have both a valid address
// and a positive amount, in input order. These are the recipients
// eligible for submission.
func (l *RecipientList) Valid() []Recipient {
	var out []Recipient
	for _, r := range l.Calculated() {
		if r.IsValid && r.Amount > 0 {
			out = append(out, r)
		}
	}
	return out
}

// ValidAddresses returns the calculated recipients with a valid address
// regardless of amount. Used for summary counts, where a valid recipient
// with a zero amount still counts as valid but keeps the run not ready.
func (l *RecipientList) ValidAddresses() []Recipient {
	var out []Recipient
	for _, r := range l.Calculated() {
		if r.IsValid {
			out = append(out, r)
		}
	}
	return out
}
