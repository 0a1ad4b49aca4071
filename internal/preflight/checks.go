package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mediaconv/internal/bus"
	"mediaconv/internal/config"
	"mediaconv/internal/content"
	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckQueueDatabase opens the queue database and runs its integrity check.
func CheckQueueDatabase(ctx context.Context, cfg *config.Config) Result {
	const name = "Queue database"

	store, err := queue.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed (%v)", err)}
	}
	defer store.Close()

	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	if health.Error != "" || !health.IntegrityCheck {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", health.DBPath, health.Error)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d jobs, schema v%d)", health.DBPath, health.TotalJobs, health.SchemaVersion)}
}

// CheckContentStores builds the content resolver and lists its stores.
func CheckContentStores(cfg *config.Config) Result {
	const name = "Content stores"

	router, err := content.NewFromConfig(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("setup failed (%v)", err)}
	}
	stores := router.Stores()
	if len(stores) == 0 {
		return Result{Name: name, Detail: "none configured (content:// inputs will fail)"}
	}
	slices.Sort(stores)
	return Result{Name: name, Passed: true, Detail: strings.Join(stores, ", ")}
}

// CheckNATS verifies that the bus is reachable.
func CheckNATS(_ context.Context, url string) Result {
	const name = "NATS bus"

	client, err := bus.Connect(url, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", url, err)}
	}
	defer client.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (connected)", url)}
}

// CheckNtfy verifies that the ntfy topic answers a poll request.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	base := strings.TrimRight(strings.TrimSpace(topic), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing topic"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/json?poll=1&since=none", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "topic requires authentication"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}
