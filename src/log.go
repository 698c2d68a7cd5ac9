package main

import (
	"os"

	"github.com/op/go-logging"
)

var logFormat = logging.MustStringFormatter(
	`%{time:2006-01-02 15:04:05.000} %{level:.4s} => %{message}`,
)

func setupLogger(level logging.Level) *logging.Logger {
	logBackend := logging.NewLogBackend(os.Stdout, "", 0)
	formatBackend := logging.NewBackendFormatter(logBackend, logFormat)
	leveled := logging.AddModuleLevel(formatBackend)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)

	return logger
}
