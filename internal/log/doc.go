// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// # Security Features
//
// The SecureHandler sanitizes sensitive information in log output:
//   - Google service account fields (private_key, private_key_id, client_secret)
//   - OAuth2 access tokens, bearer tokens and Google API keys
//   - PEM private key blocks and inline service account JSON
//   - Passwords inside database connection strings, in values and in errors
//
// Even in verbose mode, sensitive values are masked so logs can be shared
// when reporting a failed analysis.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Warn("boundary source unavailable",
//	    "dsn", "postgres://farms:secret@db/gis", // logged as farms:***REDACTED***@db/gis
//	)
//	slog.SetDefault(logger)
package log
