package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics exposes counters for proposal and billing activity.
type DomainMetrics struct {
	ProposalsGenerated *prometheus.CounterVec
	DepositsComputed   *prometheus.CounterVec
	CheckoutsCreated   prometheus.Counter
	EmailsEnqueued     *prometheus.CounterVec
}

var domainMetrics *DomainMetrics

// MustRegisterDomainMetrics registers domain collectors once and stores them
// for package-level access.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if domainMetrics != nil {
		return domainMetrics
	}
	m := &DomainMetrics{
		ProposalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_generated_total",
			Help:      "Proposals produced by the generator, labelled by provenance.",
		}, []string{"provenance"}),
		DepositsComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_computed_total",
			Help:      "Deposit computations, labelled by config type.",
		}, []string{"type"}),
		CheckoutsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_created_total",
			Help:      "Deposit checkout sessions created with the payment provider.",
		}),
		EmailsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_enqueued_total",
			Help:      "Transactional emails enqueued for the worker, labelled by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.ProposalsGenerated, m.DepositsComputed, m.CheckoutsCreated, m.EmailsEnqueued)
	domainMetrics = m
	return m
}

// Domain returns the registered domain metrics, or nil when metrics are
// disabled.
func Domain() *DomainMetrics {
	return domainMetrics
}

// CountProposalGenerated increments the generation counter when metrics are
// enabled.
func CountProposalGenerated(provenance string) {
	if domainMetrics == nil {
		return
	}
	domainMetrics.ProposalsGenerated.WithLabelValues(provenance).Inc()
}

// CountDepositComputed increments the deposit counter when metrics are
// enabled.
func CountDepositComputed(configType string) {
	if domainMetrics == nil {
		return
	}
	if configType == "" {
		configType = "none"
	}
	domainMetrics.DepositsComputed.WithLabelValues(configType).Inc()
}

// CountCheckoutCreated increments the checkout counter when metrics are
// enabled.
func CountCheckoutCreated() {
	if domainMetrics == nil {
		return
	}
	domainMetrics.CheckoutsCreated.Inc()
}

// CountEmailEnqueued increments the email counter when metrics are enabled.
func CountEmailEnqueued(kind string) {
	if domainMetrics == nil {
		return
	}
	domainMetrics.EmailsEnqueued.WithLabelValues(kind).Inc()
}
