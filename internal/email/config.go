package email

import "fmt"

// Config holds the outbound SMTP settings. It is embedded in the
// top-level config under the "smtp" YAML key.
type Config struct {
	// Host is the SMTP server hostname. Empty disables sending.
	Host string `yaml:"host"`

	// Port defaults to 587 (submission with STARTTLS).
	Port int `yaml:"port"`

	Username string `yaml:"username"`

	// Password supports ${ENV} expansion via the config loader.
	Password string `yaml:"password"`

	// StartTLS upgrades a plain connection. It is forced on for every
	// port except 465, which uses implicit TLS.
	StartTLS bool `yaml:"starttls"`

	// Sender is the bare From address. Newsletters go out as
	// "Life Tracker Newsletter <Sender>".
	Sender string `yaml:"sender"`
}

// Configured reports whether sending is possible.
func (c Config) Configured() bool {
	return c.Host != "" && c.Sender != ""
}

// ApplyDefaults fills zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		return
	}
	if c.Port == 0 {
		c.Port = 587
	}
	if !c.StartTLS && c.Port != 465 {
		c.StartTLS = true
	}
	if c.Sender == "" {
		c.Sender = c.Username
	}
}

// Validate checks the settings for internal consistency.
func (c Config) Validate() error {
	if c.Host == "" {
		return nil
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("smtp.port %d out of range (1-65535)", c.Port)
	}
	if c.Sender == "" {
		return fmt.Errorf("smtp.sender is required when smtp.host is set")
	}
	if c.Password != "" && c.Username == "" {
		return fmt.Errorf("smtp.username is required when smtp.password is set")
	}
	return nil
}
