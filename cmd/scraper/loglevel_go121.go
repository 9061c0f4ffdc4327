//go:build !go1.22

package main

import "log/slog"

// slog.SetLogLoggerLevel does not exist before Go 1.22; on older
// toolchains the log-package bridge keeps its fixed Info level.
func setLogLoggerLevel(slog.Level) {}
