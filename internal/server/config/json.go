package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	StorageMode      string `json:"storage_mode"`
	DatabaseDSN      string `json:"database_dsn"`
	SecretKey        string `json:"secret_key"`
	LogLevel         string `json:"log_level"`

	AccessTokenValidityDuration       timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration      timex.Duration `json:"refresh_token_validity_duration"`
	ResetTokenValidityDuration        timex.Duration `json:"reset_token_validity_duration"`
	VerificationTokenValidityDuration timex.Duration `json:"verification_token_validity_duration"`

	LockoutThreshold int            `json:"lockout_threshold"`
	LockoutWindow    timex.Duration `json:"lockout_window"`
	LockoutDuration  timex.Duration `json:"lockout_duration"`

	Argon2Memory      uint32 `json:"argon2_memory_kib"`
	Argon2Time        uint32 `json:"argon2_time"`
	Argon2Parallelism uint8  `json:"argon2_parallelism"`

	RefreshTokenBytes   int `json:"refresh_token_bytes"`
	SingleUseTokenBytes int `json:"single_use_token_bytes"`

	ExposeTokens    bool           `json:"expose_tokens"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrHTTP:                  c.EndpointAddrHTTP,
		StorageMode:                       c.StorageMode,
		DatabaseDSN:                       c.DatabaseDSN,
		SecretKey:                         c.SecretKey,
		LogLevel:                          c.LogLevel,
		AccessTokenValidityDuration:       timex.Duration{Duration: c.AccessTokenValidityDuration},
		RefreshTokenValidityDuration:      timex.Duration{Duration: c.RefreshTokenValidityDuration},
		ResetTokenValidityDuration:        timex.Duration{Duration: c.ResetTokenValidityDuration},
		VerificationTokenValidityDuration: timex.Duration{Duration: c.VerificationTokenValidityDuration},
		LockoutThreshold:                  c.LockoutThreshold,
		LockoutWindow:                     timex.Duration{Duration: c.LockoutWindow},
		LockoutDuration:                   timex.Duration{Duration: c.LockoutDuration},
		Argon2Memory:                      c.Argon2Memory,
		Argon2Time:                        c.Argon2Time,
		Argon2Parallelism:                 c.Argon2Parallelism,
		RefreshTokenBytes:                 c.RefreshTokenBytes,
		SingleUseTokenBytes:               c.SingleUseTokenBytes,
		ExposeTokens:                      c.ExposeTokens,
		ShutdownTimeout:                   timex.Duration{Duration: c.ShutdownTimeout},
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrHTTP = j.EndpointAddrHTTP
	c.StorageMode = j.StorageMode
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.LogLevel = j.LogLevel
	c.AccessTokenValidityDuration = j.AccessTokenValidityDuration.Duration
	c.RefreshTokenValidityDuration = j.RefreshTokenValidityDuration.Duration
	c.ResetTokenValidityDuration = j.ResetTokenValidityDuration.Duration
	c.VerificationTokenValidityDuration = j.VerificationTokenValidityDuration.Duration
	c.LockoutThreshold = j.LockoutThreshold
	c.LockoutWindow = j.LockoutWindow.Duration
	c.LockoutDuration = j.LockoutDuration.Duration
	c.Argon2Memory = j.Argon2Memory
	c.Argon2Time = j.Argon2Time
	c.Argon2Parallelism = j.Argon2Parallelism
	c.RefreshTokenBytes = j.RefreshTokenBytes
	c.SingleUseTokenBytes = j.SingleUseTokenBytes
	c.ExposeTokens = j.ExposeTokens
	c.ShutdownTimeout = j.ShutdownTimeout.Duration
}

// parseJson overlays values from a JSON file onto config.
//
// The file path comes from the -c or -config command-line flags, or from
// $AUTHKEEPER_CONFIG. If neither is set, no JSON file is loaded.
//
// Keys absent from the file keep their current value. If the file cannot
// be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFilePath()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}
