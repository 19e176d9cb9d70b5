package core

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ServiceStatus is the aggregated operational view served on the health route.
type ServiceStatus struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
	Memory   struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// StatusCollector probes the backing stores best-effort. A nil collector means
// the process serves a bare liveness answer only.
type StatusCollector struct {
	pool      *pgxpool.Pool
	redis     *redis.Client
	startedAt time.Time
}

func NewStatusCollector(pool *pgxpool.Pool, rdb *redis.Client, startedAt time.Time) *StatusCollector {
	return &StatusCollector{pool: pool, redis: rdb, startedAt: startedAt}
}

// Collect never fails: an unreachable dependency is reported in the payload
// rather than as an error.
func (s *StatusCollector) Collect(ctx context.Context) ServiceStatus {
	var st ServiceStatus

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st.Database = "ok"
	if s.pool == nil {
		st.Database = "unconfigured"
	} else if err := s.pool.Ping(ctx); err != nil {
		st.Database = "unreachable"
	}

	st.Redis = "ok"
	if s.redis == nil {
		st.Redis = "unconfigured"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		st.Redis = "unreachable"
	}

	used, total := readMemInfo()
	st.Memory.UsedBytes = used
	st.Memory.TotalBytes = total

	if !s.startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	return st
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			memTotal = parseKiBLine(line)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal > 0 {
		total = memTotal
		if memAvailable <= memTotal {
			used = memTotal - memAvailable
		}
		// convert KiB -> bytes
		used *= 1024
		total *= 1024
	}
	return used, total
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
