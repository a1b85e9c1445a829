// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package host opens sessions on a foreign numeric runtime.
//
// Example:
//
//	cfg := host.DefaultConfig()
//	cfg.Kind = "local"
//	s, err := host.Open(ctx, cfg, slog.Default())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
package host

import (
	"context"
	"log/slog"

	"github.com/born-ml/extdiff/internal/config"
	"github.com/born-ml/extdiff/internal/host"
)

// Session owns a host and hands out scopes with released temporaries.
type Session = host.Session

// Scope is one call's set of temporary bindings.
type Scope = host.Scope

// Host is a foreign-routine runtime.
type Host = host.Host

// Config selects the host kind and the R executable.
type Config = config.HostConfig

// Sentinel errors.
var (
	ErrUnknownName     = host.ErrUnknownName
	ErrHostUnavailable = host.ErrHostUnavailable
	ErrClosed          = host.ErrClosed
)

// DefaultConfig returns the default host selection: kind auto, executable R.
func DefaultConfig() Config {
	return config.Default().Host
}

// Open starts the host described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	return host.Open(ctx, cfg, logger)
}

// NewLocal returns a session on the in-process host.
func NewLocal(logger *slog.Logger) *Session {
	return host.NewSession(host.NewLocal(), logger)
}
