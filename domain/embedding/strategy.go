package embedding

import (
	"fmt"
	"strings"
)

// Strategy selects how a batch is spread across backends.
type Strategy string

// Strategy values.
const (
	// StrategyRace sends the whole batch to every backend and keeps the first success.
	StrategyRace Strategy = "race"
	// StrategyRoundRobin assigns text i to backend i mod n.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyFailover tries backends in priority order with the whole batch.
	StrategyFailover Strategy = "failover"
	// StrategyContentAware routes code-like and natural-language text to different backends.
	StrategyContentAware Strategy = "content_aware"
)

// DefaultStrategy is used when none is configured.
const DefaultStrategy = StrategyFailover

// ParseStrategy converts a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "race", "concurrent":
		return StrategyRace, nil
	case "round_robin", "round-robin", "roundrobin":
		return StrategyRoundRobin, nil
	case "failover", "priority", "":
		return StrategyFailover, nil
	case "content_aware", "content-aware", "routing":
		return StrategyContentAware, nil
	default:
		return "", fmt.Errorf("unknown embedding strategy %q", s)
	}
}

// String implements fmt.Stringer.
func (s Strategy) String() string { return string(s) }
