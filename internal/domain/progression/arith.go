package progression

import (
	"math/bits"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// addCounter returns a+b or ErrCounterOverflow if the sum does not fit.
func addCounter(op, field string, a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, shared.WrapError(domainName, op, shared.ErrOverflow, field+" would overflow", ErrCounterOverflow)
	}
	return sum, nil
}

func incCounter(op, field string, v uint64) (uint64, error) {
	return addCounter(op, field, v, 1)
}
