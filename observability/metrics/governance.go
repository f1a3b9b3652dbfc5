package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics tracks governance and staking activity derived from
// committed events.
type ProtocolMetrics struct {
	proposals *prometheus.CounterVec
	votes     *prometheus.CounterVec
	rewards   *prometheus.CounterVec
	staked    *prometheus.CounterVec
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "governance",
				Name:      "proposals_total",
				Help:      "Proposal lifecycle events by kind.",
			}, []string{"event"}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "governance",
				Name:      "votes_total",
				Help:      "Votes cast by governor and support.",
			}, []string{"source", "support"}),
			rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "staking",
				Name:      "reward_notifications_total",
				Help:      "Reward notifications delivered to pools.",
			}, []string{"pool"}),
			staked: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "staking",
				Name:      "stake_actions_total",
				Help:      "Stake, withdraw and claim actions by pool.",
			}, []string{"pool", "action"}),
		}
		prometheus.MustRegister(
			protocolRegistry.proposals,
			protocolRegistry.votes,
			protocolRegistry.rewards,
			protocolRegistry.staked,
		)
	})
	return protocolRegistry
}

func (m *ProtocolMetrics) ObserveProposal(event string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(event).Inc()
}

func (m *ProtocolMetrics) ObserveVote(source string, support bool) {
	if m == nil {
		return
	}
	label := "against"
	if support {
		label = "for"
	}
	m.votes.WithLabelValues(source, label).Inc()
}

func (m *ProtocolMetrics) ObserveRewardNotified(pool string) {
	if m == nil {
		return
	}
	m.rewards.WithLabelValues(pool).Inc()
}

func (m *ProtocolMetrics) ObserveStakeAction(pool, action string) {
	if m == nil {
		return
	}
	m.staked.WithLabelValues(pool, action).Inc()
}
