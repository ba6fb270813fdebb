package monitoring

import "math"

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

type Health struct {
	Score     float64            `json:"score"`
	Status    string             `json:"status"`
	Penalties map[string]float64 `json:"penalties"`
}

// HealthScore rates a snapshot from 0 to 100. It depends only on its
// argument.
func HealthScore(s Snapshot) Health {
	penalties := make(map[string]float64)
	add := func(name string, v float64) {
		if v > 0 {
			penalties[name] = round2(v)
		}
	}

	add("error_rate", math.Min(40, s.ErrorRate*2))

	if s.Connections.Total > 0 {
		add("idle_connections", float64(s.Connections.Idle)/float64(s.Connections.Total)*15)
	}
	if s.Subscriptions.Total > 0 {
		add("subscription_errors", float64(s.Subscriptions.Error)/float64(s.Subscriptions.Total)*20)
	}
	add("queue_failures", math.Min(10, float64(s.Queues.RecentFailures)))
	add("queue_backlog", math.Min(10, float64(s.Queues.TotalSize)/500))
	add("cpu", usagePenalty(s.Resources.CPUPercent))
	add("memory", usagePenalty(s.Resources.MemoryPercent))

	score := 100.0
	for _, p := range penalties {
		score -= p
	}
	score = round2(math.Max(0, math.Min(100, score)))

	return Health{Score: score, Status: healthStatus(score), Penalties: penalties}
}

func healthStatus(score float64) string {
	switch {
	case score >= 70:
		return HealthHealthy
	case score >= 50:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

func usagePenalty(percent float64) float64 {
	switch {
	case percent > 90:
		return 10
	case percent > 75:
		return 5
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
