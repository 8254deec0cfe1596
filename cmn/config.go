package cmn

// Config holds the process-wide runtime options, set once at world
// build time and never mutated afterward: reached only through
// handles, never ambient statics.
type Config struct {
	// NumWorkers sizes the per-PE worker pool (exec.Pool).
	NumWorkers int
	// Transport names the reliable transport implementation. "loopback"
	// is the only implementation this repo ships; cluster.BuildWorld
	// always binds it and does not read this field.
	Transport string
	// BatchThreshold is a limit on entries per outgoing batch active
	// message. Validate requires it to be positive, but ops.Engine does
	// not read it: each destination's entries go out in one message,
	// however many there are.
	BatchThreshold int
	// LockStripeCount is the width of the fallback atomic-lock table; it
	// must be a power of two so the striping hash can mask instead of mod.
	LockStripeCount int
}

// DefaultConfig mirrors aistore's GCO (global configuration object)
// defaults: sane out of the box, always overridable at world build.
func DefaultConfig() *Config {
	return &Config{
		NumWorkers:      4,
		Transport:       "loopback",
		BatchThreshold:  256,
		LockStripeCount: 64,
	}
}

func (c *Config) Validate() error {
	if c.NumWorkers <= 0 {
		return NewAllocFailed("num_workers must be positive, got %d", c.NumWorkers)
	}
	if c.LockStripeCount <= 0 || c.LockStripeCount&(c.LockStripeCount-1) != 0 {
		return NewAllocFailed("lock_stripe_count must be a power of two, got %d", c.LockStripeCount)
	}
	if c.BatchThreshold <= 0 {
		return NewAllocFailed("batch_threshold must be positive, got %d", c.BatchThreshold)
	}
	return nil
}
