// Package logging provides a simple leveled logging interface for the
// photo catalog engine.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true as a shortcut. Components that want their messages tagged use
// a Logger:
//
//	var log = logging.For("queue")
//	log.Debug("enqueued %s", locator)
package logging
