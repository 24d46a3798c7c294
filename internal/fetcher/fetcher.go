package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"dex-gem-sentry/internal/observability"
	"dex-gem-sentry/pkg/types"
	"go.uber.org/zap"
)

// maxBodySize 响应体上限，防止异常响应占满内存
const maxBodySize = 32 << 20

// FetchError 访问行情源失败（网络错误、非200状态码、响应体格式错误）
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch pairs: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch pairs: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Interface 行情获取接口，失败时返回空列表，不向上抛出错误
type Interface interface {
	Fetch(ctx context.Context) []types.PairRecord
}

// DataFetcher DexScreener数据获取器
type DataFetcher struct {
	feedURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
}

func NewDataFetcher(feedConfig types.FeedConfig, networkConfig types.NetworkConfig, metrics *observability.Metrics) *DataFetcher {
	// 设置超时时间
	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	// 如果配置了代理，则使用代理
	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", networkConfig.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	zap.L().Info("✅ 初始化行情数据获取器",
		zap.String("url", feedConfig.URL),
		zap.Duration("timeout", timeout))

	return &DataFetcher{
		feedURL: feedConfig.URL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		metrics: metrics,
	}
}

// Fetch 获取交易对列表
// 任何失败都记录日志并返回空列表，不做重试，下一个扫描周期即为重试
func (f *DataFetcher) Fetch(ctx context.Context) []types.PairRecord {
	start := time.Now()

	pairs, malformed, err := f.getPairs(ctx)
	f.metrics.ObserveFetch(start, len(pairs), malformed, err)
	if err != nil {
		zap.L().Error("❌ 获取行情数据失败", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return []types.PairRecord{}
	}

	zap.L().Info("✅ 获取到交易对数据",
		zap.Int("total_count", len(pairs)+malformed),
		zap.Int("valid_count", len(pairs)),
		zap.Int("malformed_count", malformed),
		zap.Duration("elapsed", time.Since(start)))
	return pairs
}

// searchResponse 行情源响应，pairs 中的元素逐条解析
type searchResponse struct {
	Pairs []json.RawMessage `json:"pairs"`
}

func (f *DataFetcher) getPairs(ctx context.Context) ([]types.PairRecord, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.feedURL, nil)
	if err != nil {
		return nil, 0, &FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, &FetchError{Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &FetchError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	// 读取响应体
	var body bytes.Buffer
	if _, err := body.ReadFrom(io.LimitReader(resp.Body, maxBodySize)); err != nil {
		return nil, 0, &FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if body.Len() == 0 {
		return nil, 0, &FetchError{StatusCode: resp.StatusCode, Err: errors.New("empty body")}
	}

	var apiResp searchResponse
	if err := json.Unmarshal(body.Bytes(), &apiResp); err != nil {
		return nil, 0, &FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	if apiResp.Pairs == nil {
		return nil, 0, &FetchError{StatusCode: resp.StatusCode, Err: errors.New("pairs missing or null")}
	}

	pairs, malformed := DecodePairs(apiResp.Pairs)
	return pairs, malformed, nil
}

// DecodePairs 逐条解析交易对，单条解析失败只跳过该条
func DecodePairs(raw []json.RawMessage) ([]types.PairRecord, int) {
	pairs := make([]types.PairRecord, 0, len(raw))
	malformed := 0
	for i, item := range raw {
		if len(item) == 0 || string(item) == "null" {
			continue
		}
		var p types.PairRecord
		if err := json.Unmarshal(item, &p); err != nil {
			malformed++
			zap.L().Warn("⚠️ 跳过无法解析的交易对记录", zap.Error(&types.MalformedRecordError{Index: i, Err: err}))
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs, malformed
}
