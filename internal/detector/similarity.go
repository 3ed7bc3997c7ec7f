package detector

import "github.com/Klingon-tech/klingnet-pos/pkg/txn"

// similarity scores how alike two transactions from the same sender are,
// in [0,1]. Both must already be filtered to the same non-self-transfer
// sender by the caller.
func similarity(a, b txn.Transaction) float64 {
	if a.Sender != b.Sender || a.IsSelfTransfer() || b.IsSelfTransfer() {
		return 0
	}

	score := 0.5 // same sender

	switch {
	case a.Receiver == b.Receiver:
		score += 0.1
	case a.Receiver != "" && b.Receiver != "":
		score += 0.2
	}

	if a.Amount > 0 && b.Amount > 0 {
		if a.Amount == b.Amount {
			score += 0.3
		} else {
			max := a.Amount
			if b.Amount > max {
				max = b.Amount
			}
			d := absFloat(a.Amount-b.Amount) / max
			if d <= 0.1 {
				score += 0.3 * (1 - d/0.1)
			}
		}
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// severityFor maps a confidence score to the three-tier scale spec.md §4.5
// defines for transaction double-spend patterns.
func severityFor(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "HIGH"
	case confidence >= 0.6:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
