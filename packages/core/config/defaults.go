package config

import "time"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:          Duration(30 * time.Second),
		FollowRedirects:  BoolPtr(true),
		MaxRedirects:     10,
		ValidateSSL:      BoolPtr(true),
		Bail:             BoolPtr(false),
		NoColor:          BoolPtr(false),
		Reporter:         "console",
		FallbackStrategy: "default",
	}
}
