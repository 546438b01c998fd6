package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureHandler_Handle_CapturesAndForwards(t *testing.T) {
	collector := NewCollector()
	var buf bytes.Buffer
	handler := NewCaptureHandler(slog.NewJSONHandler(&buf, nil), collector, "analysis")

	logger := slog.New(handler)
	logger.Info("sheet processed", "contract", "40312", "rows", 117)

	logs := collector.Logs("analysis")
	require.Len(t, logs, 1)
	assert.Equal(t, "sheet processed", logs[0].Message)
	assert.Equal(t, "INFO", logs[0].Level)
	assert.Equal(t, "40312", logs[0].Attributes["contract"])
	assert.Equal(t, int64(117), logs[0].Attributes["rows"])

	assert.Contains(t, buf.String(), "sheet processed")
}

func TestCaptureHandler_Handle_CapturesBelowOutputLevel(t *testing.T) {
	collector := NewCollector()
	var buf bytes.Buffer
	out := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(NewCaptureHandler(out, collector, "erp"))

	logger.Debug("retrying item", "contract", "51200")
	logger.Info("item corrected", "contract", "51200")

	// Both records reach the capture buffer.
	logs := collector.Logs("erp")
	require.Len(t, logs, 2)
	assert.Equal(t, "retrying item", logs[0].Message)

	// Only the info record makes it to the output handler.
	assert.NotContains(t, buf.String(), "retrying item")
	assert.Contains(t, buf.String(), "item corrected")
}

func TestCaptureHandler_WithAttrs_PreservesCapture(t *testing.T) {
	collector := NewCollector()
	handler := NewCaptureHandler(slog.NewJSONHandler(bytes.NewBuffer(nil), nil), collector, "bank")

	derived := handler.WithAttrs([]slog.Attr{slog.String("execution_id", "exec-9")})
	_, ok := derived.(*CaptureHandler)
	require.True(t, ok)

	logger := slog.New(handler).With("execution_id", "exec-9")
	logger.Info("payment book transmitted", "contract", "40312")

	logs := collector.Logs("bank")
	require.Len(t, logs, 1)
	assert.Equal(t, "exec-9", logs[0].Attributes["execution_id"])
	assert.Equal(t, "40312", logs[0].Attributes["contract"])
}

func TestCaptureHandler_WithGroup_PreservesCapture(t *testing.T) {
	collector := NewCollector()
	handler := NewCaptureHandler(slog.NewJSONHandler(bytes.NewBuffer(nil), nil), collector, "indices")

	derived := handler.WithGroup("stage")
	_, ok := derived.(*CaptureHandler)
	require.True(t, ok)

	logger := slog.New(handler).WithGroup("stage")
	logger.Info("index collected", "type", "ipca")

	logs := collector.Logs("indices")
	require.Len(t, logs, 1)
	assert.Equal(t, "ipca", logs[0].Attributes["type"])
}

func TestCaptureHandler_ErrorAttribute(t *testing.T) {
	collector := NewCollector()
	logger := slog.New(NewCaptureHandler(slog.NewJSONHandler(bytes.NewBuffer(nil), nil), collector, "erp"))

	logger.Error("correction failed", "error", errors.New("erp timeout"))

	logs := collector.Logs("erp")
	require.Len(t, logs, 1)
	assert.Equal(t, "erp timeout", logs[0].Attributes["error"])
}

func TestCaptureHandler_GroupAttribute(t *testing.T) {
	collector := NewCollector()
	logger := slog.New(NewCaptureHandler(slog.NewJSONHandler(bytes.NewBuffer(nil), nil), collector, "bank"))

	logger.Info("request sent", slog.Group("request", "path", "/transmit", "attempt", 2))

	logs := collector.Logs("bank")
	require.Len(t, logs, 1)
	group, ok := logs[0].Attributes["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/transmit", group["path"])
	assert.Equal(t, int64(2), group["attempt"])
}

func TestCaptureHandler_ConcurrentLogging(t *testing.T) {
	collector := NewCollector()
	logger := slog.New(NewCaptureHandler(slog.NewJSONHandler(bytes.NewBuffer(nil), nil), collector, "erp"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Info("item processed", "worker", worker, "item", j)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, collector.Logs("erp"), 200)
}
