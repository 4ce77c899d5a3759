// Package backend talks to the device registry backend (zones, device configs,
// commands, status, graph and flow documents).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/CerneaMihnea/smart-valve-control/internal/config"
	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	pathZonesDevices  = "/zones-devices"
	pathDevices       = "/devices"
	pathDevicesConfig = "/get-devices-config"
	pathSetCommand    = "/set-command"
	pathGetStatus     = "/get-status/"
	pathSaveGraph     = "/save-graph"
	pathLoadGraph     = "/load-graph"
	pathSaveFlows     = "/save-flows"
	pathGetFlows      = "/get-flows"
)

// Client device backend 客户端
type Client struct {
	httpClient *resty.Client
	cache      *OfflineCache
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewClient 创建后端客户端; cache and m may be nil.
func NewClient(cfg config.BackendConfig, cache *OfflineCache, m *metrics.Collector, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		cache:      cache,
		metrics:    m,
		logger:     logger,
	}
}

type setCommandRequest struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
}

// ZonesDevices GET /zones-devices
func (c *Client) ZonesDevices(ctx context.Context) (map[string]domain.ZoneDevices, error) {
	out := map[string]domain.ZoneDevices{}
	if err := c.getJSON(ctx, "zones-devices", pathZonesDevices, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Devices GET /devices, device ids only (sorted)
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	raw := map[string]json.RawMessage{}
	if err := c.getJSON(ctx, "devices", pathDevices, &raw); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DevicesConfig GET /get-devices-config
func (c *Client) DevicesConfig(ctx context.Context) (domain.DeviceConfigs, error) {
	out := domain.DeviceConfigs{}
	if err := c.getJSON(ctx, "devices-config", pathDevicesConfig, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStatus GET /get-status/{deviceId}
func (c *Client) GetStatus(ctx context.Context, deviceID string) (domain.DeviceStatus, error) {
	var st domain.DeviceStatus
	if err := c.getJSON(ctx, "get-status", pathGetStatus+url.PathEscape(deviceID), &st); err != nil {
		return domain.DeviceStatus{}, err
	}
	return st, nil
}

// SetCommand POST /set-command. A non-2xx answer carries the backend's error text.
func (c *Client) SetCommand(ctx context.Context, deviceID, command string) error {
	_, err := c.post(ctx, "set-command", pathSetCommand, setCommandRequest{DeviceID: deviceID, Command: command})
	if err != nil {
		c.logger.Warn("SetCommand failed",
			zap.String("device_id", deviceID),
			zap.String("command", command),
			zap.Error(err),
		)
	}
	return err
}

// SaveGraph POST /save-graph; any JSON ack is accepted.
func (c *Client) SaveGraph(ctx context.Context, doc Document) error {
	_, err := c.post(ctx, "save-graph", pathSaveGraph, doc)
	return err
}

// LoadGraph GET /load-graph; {} decodes to a Document without a graph.
func (c *Client) LoadGraph(ctx context.Context) (Document, error) {
	var doc Document
	if err := c.getJSON(ctx, "load-graph", pathLoadGraph, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// SaveFlow POST /save-flows (appends to the stored list)
func (c *Client) SaveFlow(ctx context.Context, f domain.Flow) error {
	_, err := c.post(ctx, "save-flows", pathSaveFlows, f)
	return err
}

// GetFlows GET /get-flows; accepts a bare array, {"flows":[...]} or {}.
func (c *Client) GetFlows(ctx context.Context) ([]domain.Flow, error) {
	body, err := c.get(ctx, "get-flows", pathGetFlows)
	if err != nil {
		return nil, err
	}
	flows, err := decodeFlows(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", pathGetFlows, err)
	}
	return flows, nil
}

// Warm fetches the fixed read paths so they are available offline. Failures are logged only.
func (c *Client) Warm(ctx context.Context) {
	if c.cache == nil {
		return
	}
	for _, p := range cacheablePaths {
		if _, err := c.get(ctx, "warm", p); err != nil {
			c.logger.Warn("Offline cache warm-up failed", zap.String("path", p), zap.Error(err))
		}
	}
}

func decodeFlows(body []byte) ([]domain.Flow, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []domain.Flow{}, nil
	}
	if trimmed[0] == '[' {
		var flows []domain.Flow
		if err := json.Unmarshal(trimmed, &flows); err != nil {
			return nil, err
		}
		return flows, nil
	}
	var wrapped struct {
		Flows []domain.Flow `json:"flows"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Flows == nil {
		return []domain.Flow{}, nil
	}
	return wrapped.Flows, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	body, err := c.get(ctx, op, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// get network first; on transport failure fall back to the offline cache.
func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	resp, err := c.httpClient.R().SetContext(ctx).Get(path)
	if err == nil && resp.IsSuccess() {
		c.metrics.ObserveBackend(op, nil)
		c.cache.Store(ctx, path, resp.Body())
		return resp.Body(), nil
	}

	nerr := toNetworkError(path, resp, err)
	c.metrics.ObserveBackend(op, nerr)
	if err == nil {
		c.logger.Warn("Backend returned error",
			zap.String("path", path),
			zap.Int("status_code", nerr.StatusCode),
			zap.String("body", nerr.Body),
		)
		return nil, nerr
	}
	if ctx.Err() != nil {
		return nil, nerr
	}

	if body, ok := c.cache.Lookup(ctx, path); ok {
		c.metrics.IncOfflineHits()
		c.logger.Warn("Backend unreachable, serving cached response",
			zap.String("path", path),
			zap.String("cache_name", c.cache.Name()),
			zap.Error(err),
		)
		return body, nil
	}
	c.logger.Error("Backend unreachable", zap.String("path", path), zap.Error(err))
	nerr.Body = OfflineBody
	return nil, nerr
}

func (c *Client) post(ctx context.Context, op, path string, body any) ([]byte, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err == nil && resp.IsSuccess() {
		c.metrics.ObserveBackend(op, nil)
		return resp.Body(), nil
	}
	nerr := toNetworkError(path, resp, err)
	c.metrics.ObserveBackend(op, nerr)
	return nil, nerr
}

func toNetworkError(path string, resp *resty.Response, err error) *NetworkError {
	ne := &NetworkError{Path: path, Err: err}
	if resp != nil && resp.RawResponse != nil {
		ne.StatusCode = resp.StatusCode()
		ne.Body = strings.TrimSpace(resp.String())
	}
	return ne
}
