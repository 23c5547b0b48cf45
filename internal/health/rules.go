package health

import "registry-federation/internal/metrics"

// RuleResult represents the outcome of a single rule.
type RuleResult struct {
	Triggered      bool
	Signal         string
	Recommendation string
	Severity       Status
}

// Rule evaluates a metrics snapshot.
type Rule func(snapshot map[string]int64) RuleResult

// counterRule triggers a degraded result when key is above zero.
func counterRule(key metrics.MetricKey, signal, recommendation string) Rule {
	return func(snapshot map[string]int64) RuleResult {
		if snapshot[string(key)] <= 0 {
			return RuleResult{}
		}
		return RuleResult{
			Triggered:      true,
			Signal:         signal,
			Recommendation: recommendation,
			Severity:       StatusDegraded,
		}
	}
}

// ---------- RULES ----------

var FetchFailureRule = counterRule(
	metrics.FetchFailuresTotal,
	"Peer fetch failures detected",
	"Check peer availability; failed peers are served as empty until their cache entry expires",
)

var MalformedResponseRule = counterRule(
	metrics.FetchMalformedTotal,
	"Peers returned undecodable additions data",
	"Verify the peer runs a compatible additions endpoint",
)

// A peer crosses the failure threshold; sync continues without its data.
var PeerUnhealthyRule = counterRule(
	metrics.PeersUnhealthy,
	"One or more peers are unhealthy",
	"Remove or fix the peer; its contributions are missing from the merged set",
)

var CacheErrorRule = counterRule(
	metrics.CacheErrorsTotal,
	"Cache backend errors detected",
	"Inspect the cache backend; every lookup is falling back to a remote fetch",
)

var BaselineErrorRule = counterRule(
	metrics.BaselineErrorsTotal,
	"Baseline store could not be read",
	"Check the baseline database; sync passes are starting from an empty set",
)

// DefaultRules is the rule set used by NewAnalyzer.
func DefaultRules() []Rule {
	return []Rule{
		FetchFailureRule,
		MalformedResponseRule,
		PeerUnhealthyRule,
		CacheErrorRule,
		BaselineErrorRule,
	}
}
