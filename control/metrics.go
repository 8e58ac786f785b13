package control

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the collector set behind the /metrics endpoint rpcsrv
// exposes. getinfo reads only the forwarding-fee total from it; its peer
// and channel counts come from walking the registry on each call, as the
// teacher's json_getinfo does. Nothing in this build sets ActiveChannels
// or increments ChannelsOpened, so both stay at zero.
type Metrics struct {
	Peers            prometheus.Gauge
	ActiveChannels   prometheus.Gauge
	ForwardFeeMsat   prometheus.Counter
	ChannelsOpened   prometheus.Counter
	ChannelsClosed   prometheus.Counter
	PermanentFailure prometheus.Counter
	TransientFailure prometheus.Counter

	// forwardFeeMsat mirrors ForwardFeeMsat in a plain atomic counter so
	// getinfo can read an exact current value without reaching into the
	// prometheus registry at request time.
	forwardFeeMsat uint64
}

// AddForwardFee records msat of routing fee collected. Forwarding itself
// is out of this core's scope (§1 Non-goals), so nothing calls this today;
// it exists so a future forwarding component has a counter to report
// through rather than inventing a second one.
func (m *Metrics) AddForwardFee(msat uint64) {
	atomic.AddUint64(&m.forwardFeeMsat, msat)
	m.ForwardFeeMsat.Add(float64(msat))
}

// ForwardFeeMsatTotal returns the exact cumulative msat recorded so far.
func (m *Metrics) ForwardFeeMsatTotal() uint64 {
	return atomic.LoadUint64(&m.forwardFeeMsat)
}

// NewMetrics registers a fresh set of collectors against the default
// registry. rpcsrv's /metrics handler serves prometheus.DefaultGatherer,
// so any Node constructed anywhere in the process contributes to the same
// exposition.
func NewMetrics() *Metrics {
	m := &Metrics{
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coreld",
			Name:      "peers",
			Help:      "Number of peers currently known to this node.",
		}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coreld",
			Name:      "active_channels",
			Help:      "Number of channels currently in an Active lifecycle state.",
		}),
		ForwardFeeMsat: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coreld",
			Name:      "forward_fee_msat_total",
			Help:      "Cumulative millisatoshi collected forwarding payments.",
		}),
		ChannelsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coreld",
			Name:      "channels_opened_total",
			Help:      "Total channels that reached NORMAL at least once.",
		}),
		ChannelsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coreld",
			Name:      "channels_closed_total",
			Help:      "Total drop_to_chain runs (mutual or unilateral) that resolved pending close commands.",
		}),
		PermanentFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coreld",
			Name:      "permanent_failures_total",
			Help:      "Total channel failures that forced a unilateral close.",
		}),
		TransientFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coreld",
			Name:      "transient_failures_total",
			Help:      "Total channel worker teardowns that left state untouched.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Peers, m.ActiveChannels, m.ForwardFeeMsat,
		m.ChannelsOpened, m.ChannelsClosed, m.PermanentFailure, m.TransientFailure,
	} {
		// A test process may construct more than one Node against the
		// same default registry; a collector under the same name is
		// already tracked, so a second registration attempt is a no-op
		// rather than an error worth surfacing.
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}
