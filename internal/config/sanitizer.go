package config

import "encoding/json"

// Sanitizer redacts sensitive configuration fields before the config
// is logged, mirroring the teacher's ConfigSanitizer interface.
type Sanitizer interface {
	Sanitize(cfg *Config) *Config
}

// DefaultSanitizer implements Sanitizer by deep-copying the config
// and blanking out connection URLs and credential references, which
// may embed secrets even though this package never reads them
// directly (auth is out-of-core, per spec §1).
type DefaultSanitizer struct {
	redactionValue string
}

// NewDefaultSanitizer returns a Sanitizer using "***REDACTED***".
func NewDefaultSanitizer() Sanitizer {
	return &DefaultSanitizer{redactionValue: "***REDACTED***"}
}

// NewSanitizer returns a Sanitizer using a custom redaction value.
func NewSanitizer(redactionValue string) Sanitizer {
	return &DefaultSanitizer{redactionValue: redactionValue}
}

// Sanitize returns a copy of cfg with ConnectionURL and CredentialRef
// redacted on both Source and Target.
func (s *DefaultSanitizer) Sanitize(cfg *Config) *Config {
	copied := s.deepCopy(cfg)
	copied.Source.ConnectionURL = s.redactionValue
	copied.Source.CredentialRef = s.redactionValue
	copied.Target.ConnectionURL = s.redactionValue
	copied.Target.CredentialRef = s.redactionValue
	return copied
}

func (s *DefaultSanitizer) deepCopy(cfg *Config) *Config {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var copied Config
	if err := json.Unmarshal(raw, &copied); err != nil {
		return cfg
	}
	return &copied
}
