package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"quizqa/internal/backend"
	"quizqa/internal/services"
)

const backendCheckTimeout = 30 * time.Second

// CheckBackend verifies that a backend is reachable and accepts our
// credentials. It makes a single attempt with no retries.
func CheckBackend(ctx context.Context, name string, b backend.Backend) Result {
	result := Result{Name: name, Kind: KindBackend}
	if b == nil {
		result.Detail = "not configured"
		return result
	}

	checkCtx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	if err := b.HealthCheck(checkCtx); err != nil {
		result.Detail = summarizeBackendError(err)
		return result
	}
	result.Passed = true
	result.Detail = "API reachable"
	return result
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	result := Result{Name: name, Kind: KindDirectory}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Detail = fmt.Sprintf("%s (error: does not exist)", path)
			return result
		}
		result.Detail = fmt.Sprintf("%s (error: stat: %v)", path, err)
		return result
	}
	if !info.IsDir() {
		result.Detail = fmt.Sprintf("%s (error: is not a directory)", path)
		return result
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		result.Detail = fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)
		return result
	}
	result.Passed = true
	result.Detail = fmt.Sprintf("%s (read/write ok)", path)
	return result
}

func summarizeBackendError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	switch services.KindOf(err) {
	case services.KindThrottled:
		return "reachable but throttled: " + err.Error()
	case services.KindPermanent:
		return "rejected: " + err.Error()
	}
	return err.Error()
}
