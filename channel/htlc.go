package channel

// HTLCDirection is which side offered an in-flight HTLC.
type HTLCDirection int

const (
	HTLCIn HTLCDirection = iota
	HTLCOut
)

func (d HTLCDirection) String() string {
	if d == HTLCIn {
		return "in"
	}
	return "out"
}

// HTLCState tracks an in-flight HTLC through its own small add/fulfill-or-
// fail/remove lifecycle, independent of (nested inside) the channel's own
// state machine.
type HTLCState int

const (
	HTLCSent HTLCState = iota
	HTLCCommitted
	HTLCFulfilled
	HTLCFailed
)

// HTLC is one in-flight HTLC attached to a channel.
type HTLC struct {
	ID          uint64
	Direction   HTLCDirection
	State       HTLCState
	AmountMsat  uint64
	Expiry      uint32
	PaymentHash [32]byte
}

// Stats accumulates lifetime forwarding/payment counters for getinfo and
// the per-channel snapshot.
type Stats struct {
	InPaymentsOffered     uint64
	InPaymentsFulfilled   uint64
	OutPaymentsOffered    uint64
	OutPaymentsFulfilled  uint64
	InMsatOffered         uint64
	InMsatFulfilled       uint64
	OutMsatOffered        uint64
	OutMsatFulfilled      uint64
}

// recordOffered updates the offered-side counters when an HTLC is added.
func (s *Stats) recordOffered(dir HTLCDirection, amountMsat uint64) {
	switch dir {
	case HTLCIn:
		s.InPaymentsOffered++
		s.InMsatOffered += amountMsat
	case HTLCOut:
		s.OutPaymentsOffered++
		s.OutMsatOffered += amountMsat
	}
}

// recordFulfilled updates the fulfilled-side counters when an HTLC
// resolves successfully.
func (s *Stats) recordFulfilled(dir HTLCDirection, amountMsat uint64) {
	switch dir {
	case HTLCIn:
		s.InPaymentsFulfilled++
		s.InMsatFulfilled += amountMsat
	case HTLCOut:
		s.OutPaymentsFulfilled++
		s.OutMsatFulfilled += amountMsat
	}
}
