package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"dex-gem-sentry/internal/analyzer"
	"dex-gem-sentry/pkg/types"
	"go.uber.org/zap"
)

//go:embed templates/index.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// gemRow 看板中的一行
type gemRow struct {
	Name      string
	Symbol    string
	ChainID   string
	DexID     string
	Liquidity string
	FDV       string
	Txns      int64
	Age       string
	Link      string
}

type dashboardData struct {
	StartedAt time.Time
	UpdatedAt time.Time
	Version   uint64
	Filter    types.FilterConfig
	Window    string
	Gems      []gemRow
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Store.Read()
	now := time.Now()

	window := s.opts.Filter.TxnWindow
	if window == "" {
		window = types.TxnWindowH1
	}

	data := dashboardData{
		StartedAt: s.startedAt,
		UpdatedAt: snap.UpdatedAt,
		Version:   snap.Version,
		Filter:    s.opts.Filter,
		Window:    window,
		Gems:      make([]gemRow, 0, len(snap.Records)),
	}
	for _, p := range snap.Records {
		data.Gems = append(data.Gems, gemRow{
			Name:      p.Name(),
			Symbol:    p.Symbol(),
			ChainID:   p.ChainID,
			DexID:     p.DexID,
			Liquidity: analyzer.FormatUSD(p.LiquidityUSD()),
			FDV:       analyzer.FormatUSD(p.FDV()),
			Txns:      p.TxnTotal(window),
			Age:       analyzer.FormatAge(p.AgeHours(now)),
			Link:      p.Link(),
		})
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		zap.L().Error("❌ 渲染看板失败", zap.Error(err))
		http.Error(w, "render dashboard failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
