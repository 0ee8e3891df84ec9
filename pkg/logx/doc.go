// Package logx configures taskman's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - The zero Logger usable as a no-op, so library code never nil-checks
package logx
