// Package config holds compiler-wide defaults, extending the teacher's
// single-constant-file idiom (pkg/config/defaults.go) with the knobs the
// pipeline needs: default optimization level, default sync mode, and the
// Number.isFinite open-question decision (§9, §14).
package config

// OptimizationLevel selects how much of the §4.E pass pipeline runs.
type OptimizationLevel int

const (
	OptNone OptimizationLevel = iota
	OptBasic
	OptAggressive
)

func (l OptimizationLevel) String() string {
	switch l {
	case OptNone:
		return "none"
	case OptBasic:
		return "basic"
	case OptAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// SyncMode is a data-section variable's network sync mode (§3.6).
type SyncMode string

const (
	SyncNone   SyncMode = "none"
	SyncLinear SyncMode = "linear"
	SyncSmooth SyncMode = "smooth"
)

// Config is the compiler-wide configuration threaded through the
// pipeline stages.
type Config struct {
	OptimizationLevel OptimizationLevel
	DefaultSyncMode   SyncMode

	// StrictIsFinite selects the §9/§14 Number.isFinite lowering: true
	// (default) lowers to `x == x && x != +Inf && x != -Inf`; false
	// lowers to the looser `x == x` equality-with-self form.
	StrictIsFinite bool
}

// Default returns the compiler's default configuration.
func Default() Config {
	return Config{
		OptimizationLevel: OptAggressive,
		DefaultSyncMode:   SyncNone,
		StrictIsFinite:    true,
	}
}
