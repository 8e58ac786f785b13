package channel

import (
	"math"

	"github.com/btcsuite/btclog"
	"github.com/getlantern/deepcopy"

	"github.com/chainlatch/coreld/ids"
)

// HTLCSnapshot is the read-model shape of one in-flight HTLC, as returned
// inside a channel Snapshot.
type HTLCSnapshot struct {
	Direction  string `json:"direction"`
	ID         uint64 `json:"id"`
	AmountMsat uint64 `json:"amount_msat"`
	Expiry     uint32 `json:"expiry"`
	State      string `json:"state"`
}

// Snapshot is the full, deep-copied read-model of a channel, matching the
// field list json_add_channel builds for listpeers (§4.2).
type Snapshot struct {
	State           string `json:"state"`
	ScratchTxid     string `json:"scratch_txid,omitempty"`
	Owner           string `json:"owner,omitempty"`
	ShortChannelID  string `json:"short_channel_id,omitempty"`
	Direction       int    `json:"direction,omitempty"`
	ChannelID       string `json:"channel_id"`
	FundingTxid     string `json:"funding_txid"`
	Private         bool   `json:"private"`

	FundingAllocationMsat uint64 `json:"funding_allocation_msat"`

	ToUsMsat  uint64 `json:"to_us_msat"`
	MinMsat   uint64 `json:"min_to_us_msat"`
	MaxMsat   uint64 `json:"max_to_us_msat"`
	TotalMsat uint64 `json:"total_msat"`

	DustLimitSat      uint64 `json:"dust_limit_satoshis"`
	TheirReserveSat   uint64 `json:"their_channel_reserve_satoshis"`
	OurReserveSat     uint64 `json:"our_channel_reserve_satoshis"`
	SpendableMsat     uint64 `json:"spendable_msat"`

	HTLCMinimumMsat      uint64 `json:"htlc_minimum_msat"`
	MaxHTLCValueInFlight uint64 `json:"maximum_htlc_value_in_flight_msat"`

	TheirToSelfDelay uint16 `json:"their_to_self_delay"`
	OurToSelfDelay   uint16 `json:"our_to_self_delay"`
	MaxAcceptedHTLCs uint16 `json:"max_accepted_htlcs"`

	Status []string `json:"status"`

	InPaymentsOffered    uint64 `json:"in_payments_offered"`
	InPaymentsFulfilled  uint64 `json:"in_payments_fulfilled"`
	OutPaymentsOffered   uint64 `json:"out_payments_offered"`
	OutPaymentsFulfilled uint64 `json:"out_payments_fulfilled"`
	InMsatOffered        uint64 `json:"in_msatoshi_offered"`
	InMsatFulfilled      uint64 `json:"in_msatoshi_fulfilled"`
	OutMsatOffered       uint64 `json:"out_msatoshi_offered"`
	OutMsatFulfilled     uint64 `json:"out_msatoshi_fulfilled"`

	HTLCs []HTLCSnapshot `json:"htlcs"`
}

// satToMsat converts satoshi to millisatoshi, reporting a broken-invariant
// log and substituting 0 rather than aborting if the value overflows
// uint64 (§4.2: funding amounts are bounded well under this in practice,
// but the conversion is defensive at the read-model boundary).
func satToMsat(log btclog.Logger, sat uint64) uint64 {
	const maxSat = math.MaxUint64 / 1000
	if sat > maxSat {
		if log != nil {
			log.Criticalf("funding amount %d overflows msat conversion, reporting 0", sat)
		}
		return 0
	}
	return sat * 1000
}

// Snapshot builds a deep-copied, lock-free read-model of the channel
// suitable for handing to a JSON encoder outside the channel's own
// goroutine. Slices and the billboard array are defensively deep-copied
// via getlantern/deepcopy so a concurrent mutation of the live channel can
// never alias into an already-returned snapshot. ourID is this node's own
// public key, used to compute Direction relative to the channel's peer.
func (c *Channel) Snapshot(log btclog.Logger, ourID ids.NodeID) (*Snapshot, error) {
	c.mu.Lock()
	funding := c.funding
	state := c.state
	scid := c.scid
	lastTx := c.lastTx
	owner := c.owner
	ourCfg := c.ourConfig
	theirCfg := c.theirConfig
	ourMsat := c.ourBalanceMsat
	minMsat := c.minBalanceMsat
	maxMsat := c.maxBalanceMsat
	stats := c.stats
	htlcs := append([]HTLC(nil), c.htlcs...)
	billboardLines := c.billboard.Lines()
	chanID := ids.DeriveChannelID(c.funding.Outpoint)
	peerID := c.peer.ID()
	c.mu.Unlock()

	fundingMsat := satToMsat(log, funding.AmountSat)

	s := &Snapshot{
		State:                 state.String(),
		Owner:                 owner,
		ChannelID:             chanID.String(),
		Direction:             ourID.Idx(peerID),
		FundingTxid:           funding.Outpoint.Txid.String(),
		Private:               scid == nil,
		FundingAllocationMsat: fundingMsat,
		ToUsMsat:              ourMsat,
		MinMsat:               minMsat,
		MaxMsat:               maxMsat,
		TotalMsat:             fundingMsat,
		DustLimitSat:          ourCfg.DustLimitSat,
		TheirReserveSat:       theirCfg.ChannelReserveSat,
		OurReserveSat:         ourCfg.ChannelReserveSat,
		HTLCMinimumMsat:       ourCfg.HTLCMinimumMsat,
		MaxHTLCValueInFlight:  ourCfg.MaxHTLCValueInFlight,
		TheirToSelfDelay:      theirCfg.ToSelfDelay,
		OurToSelfDelay:        ourCfg.ToSelfDelay,
		MaxAcceptedHTLCs:      ourCfg.MaxAcceptedHTLCs,
		Status:                billboardLines,
		InPaymentsOffered:     stats.InPaymentsOffered,
		InPaymentsFulfilled:   stats.InPaymentsFulfilled,
		OutPaymentsOffered:    stats.OutPaymentsOffered,
		OutPaymentsFulfilled:  stats.OutPaymentsFulfilled,
		InMsatOffered:         stats.InMsatOffered,
		InMsatFulfilled:       stats.InMsatFulfilled,
		OutMsatOffered:        stats.OutMsatOffered,
		OutMsatFulfilled:      stats.OutMsatFulfilled,
	}

	if scid != nil {
		s.ShortChannelID = scid.String()
	}
	if lastTx != nil {
		s.ScratchTxid = lastTx.TxHash().String()
	}

	// spendable is floored at 0: reserve/fee headroom can legitimately
	// exceed the current balance transiently.
	if ourMsat > theirCfg.ChannelReserveSat*1000 {
		s.SpendableMsat = ourMsat - theirCfg.ChannelReserveSat*1000
	}

	for _, h := range htlcs {
		s.HTLCs = append(s.HTLCs, HTLCSnapshot{
			Direction:  h.Direction.String(),
			ID:         h.ID,
			AmountMsat: h.AmountMsat,
			Expiry:     h.Expiry,
			State:      htlcStateName(h.State),
		})
	}

	out := &Snapshot{}
	if err := deepcopy.Copy(out, s); err != nil {
		return nil, err
	}
	return out, nil
}

func htlcStateName(s HTLCState) string {
	switch s {
	case HTLCSent:
		return "SENT_ADD_HTLC"
	case HTLCCommitted:
		return "RCVD_ADD_ACK_REVOCATION"
	case HTLCFulfilled:
		return "RCVD_REMOVE_HTLC_FULFILL"
	case HTLCFailed:
		return "RCVD_REMOVE_HTLC_FAIL"
	default:
		return "UNKNOWN"
	}
}
