package distribute

// BatchInstructions partitions an ordered instruction sequence into
// contiguous slices of at most maxPerBatch, preserving global order with
// nothing duplicated or dropped. The result has ceil(len/maxPerBatch)
// batches. Slices alias the input; callers must not mutate it afterward.
func BatchInstructions(instructions []Instruction, maxPerBatch int) [][]Instruction {
	if maxPerBatch <= 0 {
		maxPerBatch = MaxInstructionsPerTx
	}

	batches := make([][]Instruction, 0, (len(instructions)+maxPerBatch-1)/maxPerBatch)
	for start := 0; start < len(instructions); start += maxPerBatch {
		end := start + maxPerBatch
		if end > len(instructions) {
			end = len(instructions)
		}
		batches = append(batches, instructions[start:end])
	}
	return batches
}

// batchRecipients returns the addresses of recipients whose transfer
// instruction lands in the given batch. A recipient belongs to exactly
// one batch: the one carrying the instruction that actually moves funds
// to them. Creation and commission instructions may straddle batch
// boundaries without affecting attribution.
func batchRecipients(batch []Instruction, recipients []Recipient) []string {
	var out []string
	for _, in := range batch {
		if in.Kind != OpTransfer {
			continue
		}
		if in.Recipient < 0 || in.Recipient >= len(recipients) {
			continue
		}
		out = append(out, recipients[in.Recipient].Address)
	}
	return out
}
