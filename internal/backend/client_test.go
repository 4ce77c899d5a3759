package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CerneaMihnea/smart-valve-control/internal/config"
	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/store"
)

func newTestClient(t *testing.T, h http.Handler, cache *OfflineCache) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, cache, nil, zap.NewNop())
	return c, srv
}

func TestClient_ReadEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/zones-devices", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Garden":{"color":"#00ff00","devices":["V1","V2"]}}`)
	})
	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"V2":{},"V1":{"zone":"Garden"}}`)
	})
	mux.HandleFunc("/get-devices-config", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"V1":{"zone":"Garden","zone_color":"#00ff00","status":{"status_open_percent":40}}}`)
	})
	mux.HandleFunc("/get-status/V1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status_open_percent":40,"last_command":"percent_50"}`)
	})
	c, _ := newTestClient(t, mux, nil)
	ctx := context.Background()

	zones, err := c.ZonesDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"V1", "V2"}, zones["Garden"].Devices)

	ids, err := c.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"V1", "V2"}, ids)

	cfgs, err := c.DevicesConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "V1", cfgs["V1"].DeviceID)
	require.NotNil(t, cfgs["V1"].OpenPercent())
	assert.Equal(t, 40.0, *cfgs["V1"].OpenPercent())

	st, err := c.GetStatus(ctx, "V1")
	require.NoError(t, err)
	require.NotNil(t, st.OpenPercent)
	assert.Equal(t, 40.0, *st.OpenPercent)
	assert.Equal(t, "percent_50", st.LastCommand)
}

func TestClient_SetCommandFailureCarriesBody(t *testing.T) {
	var got setCommandRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/set-command", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "Comandă invalidă: percent_33")
	})
	c, _ := newTestClient(t, mux, nil)

	err := c.SetCommand(context.Background(), "V1", "percent_33")
	require.Error(t, err)
	assert.True(t, IsNetwork(err))

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.StatusBadRequest, ne.StatusCode)
	assert.Equal(t, "Comandă invalidă: percent_33", ne.Body)
	assert.Equal(t, setCommandRequest{DeviceID: "V1", Command: "percent_33"}, got)
}

func TestClient_GetFlowsShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"name":"a","valves":[1],"edges":[{"from":1,"to":"2"}]}]`, 1},
		{"wrapped", `{"flows":[{"name":"a"},{"name":"b"}]}`, 2},
		{"empty object", `{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/get-flows", func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			c, _ := newTestClient(t, mux, nil)

			flows, err := c.GetFlows(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, flows)
			assert.Len(t, flows, tt.want)
		})
	}
}

func TestClient_GetFlowsNormalizesIDs(t *testing.T) {
	flows, err := decodeFlows([]byte(`[{"name":"a","valves":[1],"edges":[{"from":1,"to":"2"}]}]`))
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.True(t, flows[0].HasEdge("1", "2"))
	assert.Equal(t, []domain.NodeID{"1"}, flows[0].Valves)
}

func TestClient_GraphDocumentRoundTrip(t *testing.T) {
	var (
		mu    sync.Mutex
		saved []byte
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/save-graph", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		saved = body
		mu.Unlock()
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/load-graph", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if saved == nil {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_, _ = w.Write(saved)
	})
	c, _ := newTestClient(t, mux, nil)
	ctx := context.Background()

	empty, err := c.LoadGraph(ctx)
	require.NoError(t, err)
	assert.False(t, empty.HasGraph())

	doc := Document{Viewport: &Viewport{Transform: "matrix(1, 0, 0, 1, 10, 5)"}}
	require.NoError(t, json.Unmarshal([]byte(`{"drawflow":{"Home":{"data":{"1":{"id":1,"name":"V1","pos_x":0,"pos_y":0}}}}}`), &doc.Export))
	require.NoError(t, c.SaveGraph(ctx, doc))

	loaded, err := c.LoadGraph(ctx)
	require.NoError(t, err)
	require.True(t, loaded.HasGraph())
	assert.Equal(t, "V1", loaded.Drawflow["Home"].Data["1"].Name)
	require.NotNil(t, loaded.Viewport)
	assert.Equal(t, "matrix(1, 0, 0, 1, 10, 5)", loaded.Viewport.Transform)
}

func TestClient_OfflineFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/get-flows", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"name":"cached"}]`)
	})
	kv := store.NewMemoryKV()
	cache := NewOfflineCache(kv, "valva-cache-v1", zap.NewNop())
	c, srv := newTestClient(t, mux, cache)
	ctx := context.Background()

	_, err := c.GetFlows(ctx)
	require.NoError(t, err)
	_, err = kv.Get(ctx, "panel-cache:valva-cache-v1:/get-flows")
	require.NoError(t, err, "successful read is cached")

	srv.Close()

	flows, err := c.GetFlows(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "cached", flows[0].Name)

	_, err = c.ZonesDevices(ctx)
	require.Error(t, err)
	assert.True(t, IsOffline(err))
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, OfflineBody, ne.Body)
}

func TestClient_HTTPErrorNotServedFromCache(t *testing.T) {
	var fail atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"V1":{}}`)
	})
	cache := NewOfflineCache(store.NewMemoryKV(), "v1", zap.NewNop())
	c, _ := newTestClient(t, mux, cache)

	_, err := c.Devices(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	_, err = c.Devices(context.Background())
	require.Error(t, err)
	assert.False(t, IsOffline(err))
}
