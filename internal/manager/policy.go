package manager

import "time"

// Policy holds the operational knobs for crash recovery and token
// refresh. The defaults match the behavior the system shipped with;
// every value is overridable through configuration.
type Policy struct {
	// Crash recovery: attempt n waits BackoffBase * BackoffMultiplier^(n-1),
	// capped at BackoffMax. At most MaxRestarts unrequested exits within
	// RestartWindow before the stream is marked failed.
	BackoffBase       time.Duration `toml:"backoff_base" env:"BACKOFF_BASE"`
	BackoffMultiplier float64       `toml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
	BackoffMax        time.Duration `toml:"backoff_max" env:"BACKOFF_MAX"`
	MaxRestarts       int           `toml:"max_restarts" env:"MAX_RESTARTS"`
	RestartWindow     time.Duration `toml:"restart_window" env:"RESTART_WINDOW"`

	// RecoveryAfter is how long a restarted process must stay up before
	// the restart counter resets.
	RecoveryAfter time.Duration `toml:"recovery_after" env:"RECOVERY_AFTER"`

	// Token refresh: a platform stream's resolved URL is refreshed
	// TokenLifetime - TokenMargin after it was last obtained.
	TokenLifetime time.Duration `toml:"token_lifetime" env:"TOKEN_LIFETIME"`
	TokenMargin   time.Duration `toml:"token_margin" env:"TOKEN_MARGIN"`
}

// DefaultPolicy returns the stock policy values.
func DefaultPolicy() Policy {
	return Policy{
		BackoffBase:       3 * time.Second,
		BackoffMultiplier: 2,
		BackoffMax:        30 * time.Second,
		MaxRestarts:       5,
		RestartWindow:     10 * time.Minute,
		RecoveryAfter:     60 * time.Second,
		TokenLifetime:     60 * time.Minute,
		TokenMargin:       10 * time.Minute,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.BackoffBase <= 0 {
		p.BackoffBase = def.BackoffBase
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = def.BackoffMultiplier
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = def.BackoffMax
	}
	if p.MaxRestarts <= 0 {
		p.MaxRestarts = def.MaxRestarts
	}
	if p.RestartWindow <= 0 {
		p.RestartWindow = def.RestartWindow
	}
	if p.RecoveryAfter <= 0 {
		p.RecoveryAfter = def.RecoveryAfter
	}
	if p.TokenLifetime <= 0 {
		p.TokenLifetime = def.TokenLifetime
	}
	if p.TokenMargin <= 0 || p.TokenMargin >= p.TokenLifetime {
		p.TokenMargin = def.TokenMargin
		if p.TokenMargin >= p.TokenLifetime {
			p.TokenMargin = p.TokenLifetime / 6
		}
	}
	return p
}

// backoffFor returns the wait before restart attempt n (1-based).
func (p Policy) backoffFor(attempt int) time.Duration {
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.BackoffMultiplier)
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// refreshDue returns when a token obtained at lastRefresh must be
// renewed.
func (p Policy) refreshDue(lastRefresh time.Time) time.Time {
	return lastRefresh.Add(p.TokenLifetime - p.TokenMargin)
}
