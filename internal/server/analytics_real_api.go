package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// consensusServiceCount is the number of independent collaborators the
// consensus Aggregator combines decisions from (spec.md §4.6: compliance,
// risk, balance, settlement) — not a BFT validator set, so this replaces
// the teacher's hardcoded "7 validators" figure with the actual count of
// services this process's Aggregator tracks.
const consensusServiceCount = 4

// SystemMetricsResponse reports throughput and chain-height metrics
// sourced entirely from the server's own counters and the Event Ledger,
// with no latency figures — this process has no latency histogram to
// report one from.
type SystemMetricsResponse struct {
	Timestamp          string  `json:"timestamp"`
	TPS                float64 `json:"tps"`
	TotalTransactions  int64   `json:"total_transactions"`
	SuccessRate        float64 `json:"success_rate"`
	ActiveWorkers      int     `json:"active_workers"`
	QueueSize          int     `json:"queue_size"`
	ConsensusServices  int     `json:"consensus_services"`
	LatestBlockHeight  uint64  `json:"latest_block_height"`
	Uptime             string  `json:"uptime"`
}

// HandleSystemMetrics returns real-time system metrics computed from the
// server's submission counters and the Event Ledger's chain tip.
func (s *Server) HandleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	totalTx := atomic.LoadInt64(&s.totalTransactions)
	failed := atomic.LoadInt64(&s.failedTransactions)

	successRate := 100.0
	if totalTx > 0 {
		successRate = float64(totalTx-failed) / float64(totalTx) * 100
	}

	uptime := time.Since(s.startTime)
	var tps float64
	if uptime.Seconds() > 0 {
		tps = float64(totalTx) / uptime.Seconds()
	}

	var latestHeight uint64
	if block, err := s.ledger.GetLatestBlock(); err == nil && block != nil {
		latestHeight = block.Height
	}

	metrics := SystemMetricsResponse{
		Timestamp:         time.Now().Format(time.RFC3339),
		TPS:               tps,
		TotalTransactions: totalTx,
		SuccessRate:       successRate,
		ActiveWorkers:     s.config.Limits.WorkerPoolSize,
		QueueSize:         len(s.paymentQueue),
		ConsensusServices: consensusServiceCount,
		LatestBlockHeight: latestHeight,
		Uptime:            formatDuration(uptime),
	}

	json.NewEncoder(w).Encode(metrics)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return formatTime(hours, "h", minutes, "m")
	}
	if minutes > 0 {
		return formatTime(minutes, "m", seconds, "s")
	}
	return formatTime(seconds, "s", 0, "")
}

func formatTime(v1 int, u1 string, v2 int, u2 string) string {
	if v2 > 0 {
		return formatInt(v1) + u1 + " " + formatInt(v2) + u2
	}
	return formatInt(v1) + u1
}

func formatInt(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	return itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte
	i := len(buf) - 1
	for n > 0 {
		buf[i] = byte('0' + n%10)
		n /= 10
		i--
	}
	return string(buf[i+1:])
}
