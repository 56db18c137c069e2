// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Components take a *zap.Logger in their constructors and derive a child per
// component and terminal:
//
//	logger := logging.NewDefault()
//	bufLog := logging.Component(logger.Logger, "buffer")
//	logging.ForTerminal(bufLog, "term_01J...").Debug("flush", zap.Int("bytes", n))
package logging
