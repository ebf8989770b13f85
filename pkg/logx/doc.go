// Package logx is snipcast's structured logger.
//
// Loggers are values over zerolog. Console lines carry a short timestamp
// and file:line caller; the optional file sink writes JSON lines. A Logger
// built from a Service follows Service.Apply, so a config reload changes
// level and sinks for every logger already handed out.
package logx
