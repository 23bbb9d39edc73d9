// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - leveled helpers taking a context (Info, InfoKV, WarnKV, ErrorKV, ...),
//   - Sink, which turns the context logger into a diagnostic line consumer.
//
// Services accept a context and extract the logger from it, so a run started
// for one project keeps its name and fields across every package it touches.
package logger
