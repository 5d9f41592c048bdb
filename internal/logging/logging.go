// Package logging constructs the zap.Logger used throughout the repo.
// Grounded on jsndz-signalbus's pervasive zap.NewProduction/zap.String/
// zap.Error call style (see cmd/email_worker/service/sendmail.go).
package logging

import "go.uber.org/zap"

// New returns a development logger (human-readable, debug level) when
// debug is true, and a production logger (JSON, info level) otherwise.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
