// Package logging provides structured logging utilities for mailmcp.
//
// All components log through log/slog with a shared set of attribute keys
// (operation, service, tool, folder, count, duration, status, error) so that
// mailbox, SMTP and collection logs can be filtered the same way.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "search")
//	logger.Info("search resolved page",
//	    logging.Folder("INBOX"),
//	    logging.Count(len(ids)))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("connected",
//	    logging.UserHash(address))
//
// # Security Considerations
//
//   - Mailbox addresses are hashed to prevent PII leakage while allowing correlation
//   - Passwords are never logged directly, use SanitizeSecret
//   - Outgoing mail is logged by recipient domain only
package logging
