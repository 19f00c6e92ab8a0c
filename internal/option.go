package internal

// Option adjusts how the engine process is assembled before it runs.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig supplies a pre-loaded configuration, replacing the defaults.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
