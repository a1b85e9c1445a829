package host

import (
	"context"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/born-ml/extdiff/internal/config"
)

// Open starts the host selected by cfg and wraps it in a Session.
//
//   - local: always the in-process host
//   - r: the R process, or ErrHostUnavailable
//   - auto: the R process when it starts, otherwise the local host with a
//     warning
func Open(ctx context.Context, cfg config.HostConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	switch cfg.Kind {
	case config.HostLocal:
		return NewSession(NewLocal(), logger), nil

	case config.HostR:
		p, err := StartR(ctx, cfg.Executable, cfg.Args, logger)
		if err != nil {
			return nil, err
		}
		return NewSession(p, logger), nil

	case config.HostAuto:
		p, err := StartR(ctx, cfg.Executable, cfg.Args, logger)
		if err != nil {
			logger.Warn("foreign runtime unavailable, using local routines",
				"executable", cfg.Executable, "error", err)
			return NewSession(NewLocal(), logger), nil
		}
		return NewSession(p, logger), nil

	default:
		return nil, errors.Errorf("host: unknown kind %q", cfg.Kind)
	}
}
