package ledger

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Numberer mints human-readable invoice numbers.
type Numberer interface {
	Next(now time.Time) string
}

// ULIDNumberer produces INV-<ULID>. ULIDs sort by time and carry 80 random
// bits, so two invoices created in the same millisecond still differ.
type ULIDNumberer struct{}

func (ULIDNumberer) Next(now time.Time) string {
	return "INV-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
