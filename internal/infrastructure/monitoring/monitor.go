package monitoring

import (
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Metrics 指标收集器 — 网关一次运行期间的累积计数
type Metrics struct {
	// 请求计数
	RequestsTotal   uint64
	RequestsSuccess uint64
	RequestsFailed  uint64

	// 工具调用
	ToolCallsTotal   uint64
	ToolCallsSuccess uint64
	ToolCallsFailed  uint64

	// 循环检测 (注入警告 / 硬停止)
	LoopWarningsTotal  uint64
	LoopHardStopsTotal uint64

	// 延迟 (纳秒)
	RequestLatencySum   uint64
	RequestLatencyCount uint64
	ToolLatencySum      uint64
	ToolLatencyCount    uint64

	// 模型调用
	ModelCallsTotal uint64
	ModelTokensUsed uint64

	// 错误
	ErrorsTotal uint64

	// 启动时间
	StartTime time.Time
}

// Monitor 性能监控器
type Monitor struct {
	metrics *Metrics
	logger  *zap.Logger
}

// NewMonitor 创建监控器
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		metrics: &Metrics{
			StartTime: time.Now(),
		},
		logger: logger,
	}
}

// 计数方法
func (m *Monitor) IncRequestTotal()    { atomic.AddUint64(&m.metrics.RequestsTotal, 1) }
func (m *Monitor) IncRequestSuccess()  { atomic.AddUint64(&m.metrics.RequestsSuccess, 1) }
func (m *Monitor) IncRequestFailed()   { atomic.AddUint64(&m.metrics.RequestsFailed, 1) }
func (m *Monitor) IncToolCallTotal()   { atomic.AddUint64(&m.metrics.ToolCallsTotal, 1) }
func (m *Monitor) IncToolCallSuccess() { atomic.AddUint64(&m.metrics.ToolCallsSuccess, 1) }
func (m *Monitor) IncToolCallFailed()  { atomic.AddUint64(&m.metrics.ToolCallsFailed, 1) }
func (m *Monitor) IncModelCall()       { atomic.AddUint64(&m.metrics.ModelCallsTotal, 1) }
func (m *Monitor) IncError()           { atomic.AddUint64(&m.metrics.ErrorsTotal, 1) }
func (m *Monitor) IncLoopWarning()     { atomic.AddUint64(&m.metrics.LoopWarningsTotal, 1) }
func (m *Monitor) IncLoopHardStop()    { atomic.AddUint64(&m.metrics.LoopHardStopsTotal, 1) }

func (m *Monitor) AddTokensUsed(n int) {
	atomic.AddUint64(&m.metrics.ModelTokensUsed, uint64(n))
}

func (m *Monitor) RecordRequestLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.RequestLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.RequestLatencyCount, 1)
}

func (m *Monitor) RecordToolLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.ToolLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.ToolLatencyCount, 1)
}

// GetStats 获取当前统计 (由 /api/stats 直接渲染)
func (m *Monitor) GetStats() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime)
	reqTotal := atomic.LoadUint64(&m.metrics.RequestsTotal)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.RequestLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(count) / 1e6 // ms
	}
	avgToolLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.ToolLatencyCount); count > 0 {
		avgToolLatency = float64(atomic.LoadUint64(&m.metrics.ToolLatencySum)) / float64(count) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds":        uptime.Seconds(),
		"requests_total":        reqTotal,
		"requests_success":      atomic.LoadUint64(&m.metrics.RequestsSuccess),
		"requests_failed":       atomic.LoadUint64(&m.metrics.RequestsFailed),
		"tool_calls_total":      atomic.LoadUint64(&m.metrics.ToolCallsTotal),
		"tool_calls_success":    atomic.LoadUint64(&m.metrics.ToolCallsSuccess),
		"tool_calls_failed":     atomic.LoadUint64(&m.metrics.ToolCallsFailed),
		"loop_warnings_total":   atomic.LoadUint64(&m.metrics.LoopWarningsTotal),
		"loop_hard_stops_total": atomic.LoadUint64(&m.metrics.LoopHardStopsTotal),
		"model_calls_total":     atomic.LoadUint64(&m.metrics.ModelCallsTotal),
		"model_tokens_used":     atomic.LoadUint64(&m.metrics.ModelTokensUsed),
		"errors_total":          atomic.LoadUint64(&m.metrics.ErrorsTotal),
		"avg_latency_ms":        avgLatency,
		"avg_tool_latency_ms":   avgToolLatency,
		"memory_mb":             float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":            runtime.NumGoroutine(),
		"rps":                   float64(reqTotal) / uptime.Seconds(),
	}
}
