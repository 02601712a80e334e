package distribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeInstructions(n int) []Instruction {
	out := make([]Instruction, n)
	for i := range out {
		out[i] = Instruction{Kind: OpTransfer, Recipient: i}
	}
	return out
}

func TestBatchInstructionsRoundTrip(t *testing.T) {
	for length := 0; length <= 40; length++ {
		ins := makeInstructions(length)
		batches := BatchInstructions(ins, MaxInstructionsPerTx)

		expected := (length + MaxInstructionsPerTx - 1) / MaxInstructionsPerTx
		require.Len(t, batches, expected, "length %d", length)

		// Concatenating the batches reproduces the input exactly.
		flat := make([]Instruction, 0, len(ins))
		for _, b := range batches {
			require.LessOrEqual(t, len(b), MaxInstructionsPerTx)
			flat = append(flat, b...)
		}
		assert.Equal(t, ins, flat, "length %d", length)
	}
}

func TestBatchInstructionsEmpty(t *testing.T) {
	assert.Empty(t, BatchInstructions(nil, 8))
}

func TestBatchInstructionsDefaultsMaxPerBatch(t *testing.T) {
	batches := BatchInstructions(makeInstructions(9), 0)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], MaxInstructionsPerTx)
	assert.Len(t, batches[1], 1)
}

func TestBatchRecipientsAttributesByTransferOp(t *testing.T) {
	recipients := []Recipient{
		{Address: "addr-0"},
		{Address: "addr-1"},
	}

	// Recipient 1's transfer is in this batch but its commission is not;
	// recipient 0 contributes only a commission here. Attribution follows
	// the transfer instruction alone.
	batch := []Instruction{
		{Kind: OpFundFeeAccount, Recipient: -1},
		{Kind: OpCommission, Recipient: 0},
		{Kind: OpCreateAccount, Recipient: 1},
		{Kind: OpTransfer, Recipient: 1},
	}

	assert.Equal(t, []string{"addr-1"}, batchRecipients(batch, recipients))
}

func TestBatchRecipientsIgnoresOutOfRangeIndexes(t *testing.T) {
	batch := []Instruction{
		{Kind: OpTransfer, Recipient: 5},
		{Kind: OpTransfer, Recipient: -1},
	}
	assert.Empty(t, batchRecipients(batch, []Recipient{{Address: "a"}}))
}
