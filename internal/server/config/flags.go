package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-m string   storage mode ("postgres" or "memory")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-l string   log level
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-x int      reset token validity, minutes
//	-v int      verification token validity, minutes
//	-n int      failed logins before lockout
//	-w int      lockout window, minutes
//	-k int      lockout duration, minutes
//	-e bool     expose reset tokens in responses (development only)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-d", "-s", "-l", "-t", "-r", "-x", "-v", "-n", "-w", "-k", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.StorageMode, "m", config.StorageMode, "storage mode (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	accessTokenValidity := fs.Int("t", minutes(config.AccessTokenValidityDuration), "access token validity (in minutes)")
	refreshTokenValidity := fs.Int("r", minutes(config.RefreshTokenValidityDuration), "refresh token validity (in minutes)")
	resetTokenValidity := fs.Int("x", minutes(config.ResetTokenValidityDuration), "reset token validity (in minutes)")
	verificationTokenValidity := fs.Int("v", minutes(config.VerificationTokenValidityDuration), "verification token validity (in minutes)")

	fs.IntVar(&config.LockoutThreshold, "n", config.LockoutThreshold, "failed logins before lockout")
	lockoutWindow := fs.Int("w", minutes(config.LockoutWindow), "lockout window (in minutes)")
	lockoutDuration := fs.Int("k", minutes(config.LockoutDuration), "lockout duration (in minutes)")

	fs.BoolVar(&config.ExposeTokens, "e", config.ExposeTokens, "return reset tokens in responses (development only)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Durations change only when their flag is given, so sub-minute
	// values from JSON survive.
	durations := map[string]struct {
		minutes *int
		dst     *time.Duration
	}{
		"t": {accessTokenValidity, &config.AccessTokenValidityDuration},
		"r": {refreshTokenValidity, &config.RefreshTokenValidityDuration},
		"x": {resetTokenValidity, &config.ResetTokenValidityDuration},
		"v": {verificationTokenValidity, &config.VerificationTokenValidityDuration},
		"w": {lockoutWindow, &config.LockoutWindow},
		"k": {lockoutDuration, &config.LockoutDuration},
	}
	fs.Visit(func(f *flag.Flag) {
		if d, ok := durations[f.Name]; ok {
			*d.dst = time.Duration(*d.minutes) * time.Minute
		}
	})
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}
