package vision

import (
	"context"
	"time"

	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"go.uber.org/zap"
)

// Mode values for adapter selection
const (
	ModeRemote = "remote"
	ModeStub   = "stub"
)

// Select picks the vision adapter once at startup. The remote adapter is
// used only when mode is remote and it answers a ping within pingTimeout;
// otherwise the stub serves every request. There is no runtime fallback.
func Select(ctx context.Context, mode string, remote *RemoteAdapter, pingTimeout time.Duration, logger *zap.Logger) outbound.VisionAdapter {
	if mode != ModeRemote || remote == nil {
		logger.Info("Vision adapter selected", zap.String("adapter", StubName), zap.String("mode", mode))
		return NewStubAdapter()
	}

	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := remote.Ping(pingCtx); err != nil {
		logger.Warn("Remote vision adapter unreachable, using stub",
			zap.String("adapter", remote.Name()),
			zap.Error(err),
		)
		return NewStubAdapter()
	}

	logger.Info("Vision adapter selected", zap.String("adapter", remote.Name()), zap.String("mode", mode))
	return remote
}
