package memory

import (
	"testing"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/hosttest"
)

func TestLedgerContract(t *testing.T) {
	hosttest.Run(t, func(t *testing.T) progression.Host {
		return New()
	})
}
