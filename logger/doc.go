// Package logger provides structured logging for the fault tolerance runtime,
// backed by zerolog. Components receive a tagged child logger via
// WithComponent/WithResource so every record carries its origin.
package logger
