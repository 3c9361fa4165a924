package consensus

import "fmt"

// Fixed cycle costs. They make resource exhaustion deterministic for a given
// transaction and limit.
const (
	MAX_CYCLES_DEFAULT       uint64 = 70_000_000
	CYCLES_RUN_BASE          uint64 = 5_000
	CYCLES_PER_DECODE_BYTE   uint64 = 1
	CYCLES_PER_HASH_BLOCK    uint64 = 100
	CYCLES_SECP256K1_RECOVER uint64 = 1_200_000
	CYCLES_EXEC_BASE         uint64 = 20_000

	hashBlockBytes = 128
)

// CycleMeter accounts the work of one verification against a limit.
// It is not safe for concurrent use; parallel children get their own meter.
type CycleMeter struct {
	limit uint64
	used  uint64
}

func NewCycleMeter(limit uint64) *CycleMeter {
	return &CycleMeter{limit: limit}
}

// Charge adds n cycles. Exceeding the limit is fatal and leaves the meter
// saturated at the limit.
func (m *CycleMeter) Charge(n uint64) error {
	if n > m.limit-m.used {
		m.used = m.limit
		return lockerr(LOCK_ERR_RESOURCE_EXHAUSTED, fmt.Sprintf("cycle limit %d exceeded", m.limit))
	}
	m.used += n
	return nil
}

func (m *CycleMeter) Used() uint64 { return m.used }

func (m *CycleMeter) Remaining() uint64 { return m.limit - m.used }

func (m *CycleMeter) Limit() uint64 { return m.limit }

func hashCycles(n int) uint64 {
	return (uint64(n)/hashBlockBytes + 1) * CYCLES_PER_HASH_BLOCK // #nosec G115 -- n is a length.
}

func decodeCycles(n int) uint64 {
	return uint64(n) * CYCLES_PER_DECODE_BYTE // #nosec G115 -- n is a length.
}
