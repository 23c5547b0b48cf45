package peers

import "time"

// RetryPolicy controls retry behavior for network operations
type RetryPolicy struct {
	MaxRetries  int           // max retry attempts after the first try
	BaseBackoff time.Duration // initial backoff duration
	MaxBackoff  time.Duration // upper bound on backoff
	JitterFn    func(time.Duration) time.Duration
}

// TimeoutPolicy defines request-level timeouts
type TimeoutPolicy struct {
	// FetchTimeout bounds one peer fetch, retries included.
	FetchTimeout time.Duration
}

// HealthPolicy defines when a peer is considered healthy or recovered
type HealthPolicy struct {
	FailureThreshold int // consecutive failures to mark unhealthy
	SuccessThreshold int // consecutive successes to mark healthy again
}

type PeerConfig struct {
	Retry   RetryPolicy
	Timeout TimeoutPolicy
	Health  HealthPolicy
}

func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		Retry: RetryPolicy{
			MaxRetries:  2,
			BaseBackoff: 100 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
			JitterFn:    func(d time.Duration) time.Duration { return d / 2 }, // default jitter: 50%
		},
		Timeout: TimeoutPolicy{
			FetchTimeout: 5 * time.Second,
		},
		Health: HealthPolicy{
			FailureThreshold: 3,
			SuccessThreshold: 2,
		},
	}
}
