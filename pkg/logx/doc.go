// Package logx configures shutdownsched's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller) on stderr
//   - File output JSON-structured
//   - Runtime level and sink changes through Service.Apply
package logx
