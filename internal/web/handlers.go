package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"dex-gem-sentry/internal/analyzer"
	"dex-gem-sentry/internal/journal"
	"dex-gem-sentry/internal/storage"
	"dex-gem-sentry/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

// SnapshotResponse 快照接口响应
type SnapshotResponse struct {
	Version   uint64             `json:"version"`
	UpdatedAt *time.Time         `json:"updated_at,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	Filter    types.FilterConfig `json:"filter"`
	Count     int                `json:"count"`
	Records   []types.PairRecord `json:"records"`
}

// ScanResponse 手动扫描响应
type ScanResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Result  *analyzer.CycleResult `json:"result,omitempty"`
}

func (s *Server) snapshotResponse(snap storage.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Version:   snap.Version,
		StartedAt: s.startedAt,
		Filter:    s.opts.Filter,
		Count:     len(snap.Records),
		Records:   snap.Records,
	}
	if !snap.UpdatedAt.IsZero() {
		updated := snap.UpdatedAt
		resp.UpdatedAt = &updated
	}
	if resp.Records == nil {
		resp.Records = []types.PairRecord{}
	}
	return resp
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotResponse(s.opts.Store.Read()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Store.Read()

	response := map[string]interface{}{
		"status":           "healthy",
		"started_at":       s.startedAt,
		"uptime":           time.Since(s.startedAt).Round(time.Second).String(),
		"snapshot_version": snap.Version,
		"snapshot_size":    len(snap.Records),
		"dedup_size":       s.opts.DedupSize(),
		"storage":          s.opts.Store.GetStats(),
	}
	if s.opts.Scanner != nil {
		if last, ok := s.opts.Scanner.LastResult(); ok {
			response["last_cycle"] = last
		}
		if err := s.opts.Scanner.LastError(); err != nil {
			response["last_error"] = err.Error()
		}
	}
	if checker, ok := s.opts.Journal.(interface{ Health() error }); ok {
		if err := checker.Health(); err != nil {
			response["journal"] = err.Error()
		} else {
			response["journal"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scanner == nil {
		writeJSON(w, http.StatusServiceUnavailable, ScanResponse{Success: false, Message: "扫描器未启用"})
		return
	}

	zap.L().Info("🔍 收到手动扫描请求", zap.String("remote", r.RemoteAddr))
	// 交易对在发送前已被标记，客户端断开不能中断本轮发送
	result, err := s.opts.Scanner.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ScanResponse{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		Success: true,
		Message: "扫描完成",
		Result:  &result,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		http.Error(w, "alert journal is disabled", http.StatusNotFound)
		return
	}

	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAlertLimit)
	}

	records, err := s.opts.Journal.Recent(r.Context(), limit)
	if err != nil {
		zap.L().Error("❌ 查询预警流水失败", zap.Error(err))
		http.Error(w, "query alert journal failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []journal.AlertRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(records),
		"alerts": records,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("⚠️ 写入响应失败", zap.Error(err))
	}
}
