package logging

import (
	"fmt"
	"io"
	"os"
)

// EarlyLog writes to the console before the configured logger exists, i.e.
// while flags and the config file are being read.
type EarlyLog struct {
	out  io.Writer
	err  io.Writer
	exit func(int)
}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{out: os.Stdout, err: os.Stderr, exit: os.Exit}
}

// Error reports a startup failure and exits with status 1.
func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.write(l.err, "ERROR", msg, args...)
	l.exit(1)
}

func (l *EarlyLog) Fatal(msg string, args ...interface{}) {
	l.write(l.err, "FATAL", msg, args...)
	l.exit(1)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.write(l.err, "WARN", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.write(l.out, "INFO", msg, args...)
}

func (l *EarlyLog) write(w io.Writer, level, msg string, args ...interface{}) {
	fmt.Fprintf(w, "%s: %s\n", level, fmt.Sprintf(msg, args...))
}
