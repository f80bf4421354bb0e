package application

import (
	"fmt"

	"github.com/stockrun/stockrun/internal/domain/report"
)

// Horizon is the analysis profile a caller requests. It shapes caching and
// the advisor defaults; the analyzers always compute every horizon.
type Horizon string

const (
	HorizonShort  Horizon = "short"
	HorizonMedium Horizon = "medium"
	HorizonLong   Horizon = "long"
)

// ParseHorizon validates a raw profile string, defaulting empty to medium.
func ParseHorizon(s string) (Horizon, error) {
	switch h := Horizon(s); h {
	case HorizonShort, HorizonMedium, HorizonLong:
		return h, nil
	case "":
		return HorizonMedium, nil
	default:
		return "", fmt.Errorf("unknown analysis profile %q", s)
	}
}

// ParseScope validates a raw scope string, defaulting empty to all.
func ParseScope(s string) (report.Scope, error) {
	switch sc := report.Scope(s); sc {
	case report.ScopeDaily, report.ScopeIntraday, report.ScopeAll:
		return sc, nil
	case "":
		return report.ScopeAll, nil
	default:
		return "", fmt.Errorf("unknown analysis scope %q", s)
	}
}
