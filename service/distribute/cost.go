package distribute

import "math"

// Fee schedule, all in lamports unless noted. The estimate is deliberately
// conservative: under-estimating risks submission failure mid-run, while
// over-estimating only blocks a run that would have been marginal anyway.
const (
	// MaxInstructionsPerTx bounds how many instructions go into one
	// transaction before it is split into the next batch.
	MaxInstructionsPerTx = 8

	// LamportsPerSOL is the native base-unit scale.
	LamportsPerSOL = 1_000_000_000

	// baseFeeLamports is the network base fee per submitted transaction.
	baseFeeLamports = 5_000

	// tokenAccountRentLamports is the rent-exempt deposit for creating an
	// associated token account.
	tokenAccountRentLamports = 2_039_280

	// CommissionLamports is the fixed per-recipient commission routed to
	// the fee-collection account.
	CommissionLamports = 500_000

	// feeAccountRentLamports is the rent-exempt minimum for a zero-data
	// account; the fee collector must hold at least this much to receive
	// commission transfers.
	feeAccountRentLamports = 890_880

	// feeAccountMarginLamports pads the initial fee-collector funding so a
	// single rent increase does not strand the account below the minimum.
	feeAccountMarginLamports = 100_000

	// newAccountFraction is the assumed share of token recipients whose
	// associated account does not exist yet.
	newAccountFraction = 0.20
)

// CalculateEqualDistribution returns the per-recipient amount for an
// equal split of totalAmount. Returns 0 when there is nothing to split.
// No rounding to token decimals happens here; amounts are truncated to
// base units only when instructions are built.
func CalculateEqualDistribution(totalAmount float64, recipientCount int) float64 {
	if recipientCount == 0 || totalAmount <= 0 {
		return 0
	}
	return totalAmount / float64(recipientCount)
}

// CalculateTotalCost sums recipient amounts.
func CalculateTotalCost(recipients []Recipient) float64 {
	var total float64
	for _, r := range recipients {
		total += r.Amount
	}
	return total
}

// CalculateNetworkFees estimates the native-asset fees for distributing to
// recipientCount recipients, in SOL. The estimate covers the base fee for
// every transaction the batcher will produce, rent for the fraction of
// token recipients assumed to need a new associated account, the
// per-recipient commission, and a worst-case allowance for topping up the
// fee-collection account itself.
func CalculateNetworkFees(recipientCount int, asset AssetSelection) float64 {
	if recipientCount == 0 {
		return 0
	}

	batches := int(math.Ceil(float64(recipientCount) / float64(MaxInstructionsPerTx)))
	lamports := float64(batches * baseFeeLamports)

	if asset.Type == AssetToken {
		lamports += float64(recipientCount) * newAccountFraction * tokenAccountRentLamports
	}

	lamports += float64(recipientCount * CommissionLamports)
	lamports += feeAccountRentLamports + feeAccountMarginLamports

	return lamports / LamportsPerSOL
}

// CalculateSummary derives the read-only summary snapshot for the current
// recipient list and asset selection. walletBalance is the sender's
// native balance in SOL. Fees are always paid in SOL regardless of the
// transfer asset, so token readiness checks the token balance against the
// total and the SOL balance against the fees separately.
func CalculateSummary(recipients, validRecipients []Recipient, asset AssetSelection, walletBalance float64) SummaryData {
	totalCost := CalculateTotalCost(validRecipients)
	networkFees := CalculateNetworkFees(len(validRecipients), asset)

	var ready bool
	switch asset.Type {
	case AssetToken:
		var tokenBalance float64
		if asset.Token != nil && asset.Token.Balance != nil {
			tokenBalance = *asset.Token.Balance
		}
		ready = len(validRecipients) > 0 &&
			totalCost > 0 &&
			tokenBalance >= totalCost &&
			walletBalance >= networkFees
	default:
		ready = len(validRecipients) > 0 &&
			totalCost > 0 &&
			walletBalance >= totalCost+networkFees
	}

	return SummaryData{
		Recipients:      len(recipients),
		ValidRecipients: len(validRecipients),
		TotalCost:       totalCost,
		NetworkFees:     networkFees,
		WalletBalance:   walletBalance,
		IsReady:         ready,
		AssetSelection:  asset,
	}
}
