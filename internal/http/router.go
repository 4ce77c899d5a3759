package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const apiPrefix = "/panel/api/v1"

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（/metrics）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// method 只允许指定方法
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterHealthRoutes /health
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// RegisterPanelRoutes 注册操作员 API
func (r *Router) RegisterPanelRoutes(h *PanelHandler) {
	// graph
	r.Handle(apiPrefix+"/graph", method(http.MethodGet, h.GetGraph))
	r.Handle(apiPrefix+"/graph/export", method(http.MethodGet, h.ExportGraph))
	r.Handle(apiPrefix+"/graph/load", method(http.MethodPost, h.LoadGraph))
	r.Handle(apiPrefix+"/graph/save", method(http.MethodPost, h.SaveGraph))
	r.Handle(apiPrefix+"/graph/nodes", method(http.MethodPost, h.AddNode))
	r.Handle(apiPrefix+"/graph/viewport", method(http.MethodPost, h.SetViewport))
	r.Handle(apiPrefix+"/graph/edges", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			h.Connect(w, req)
		case http.MethodDelete:
			h.Disconnect(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// nodes/{id} 与 nodes/{id}/move
	nodesPrefix := apiPrefix + "/graph/nodes/"
	r.Handle(nodesPrefix, func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, nodesPrefix)
		if id, ok := strings.CutSuffix(rest, "/move"); ok {
			if id == "" || strings.Contains(id, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			method(http.MethodPost, func(w http.ResponseWriter, req *http.Request) { h.MoveNode(w, req, id) })(w, req)
			return
		}
		if rest == "" || strings.Contains(rest, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		method(http.MethodDelete, func(w http.ResponseWriter, req *http.Request) { h.RemoveNode(w, req, rest) })(w, req)
	})

	// zones
	r.Handle(apiPrefix+"/zones", method(http.MethodGet, h.GetZones))
	r.Handle(apiPrefix+"/zones/reset", method(http.MethodPost, h.ResetZones))
	r.Handle(apiPrefix+"/zones/visibility", method(http.MethodPost, h.SetZonesVisibility))
	r.Handle(apiPrefix+"/zones/command", method(http.MethodPost, h.ZoneCommand))

	// flows
	r.Handle(apiPrefix+"/flows", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetFlows(w, req)
		case http.MethodPost:
			h.CreateFlow(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle(apiPrefix+"/flows/export", method(http.MethodGet, h.ExportFlows))
	r.Handle(apiPrefix+"/flows/highlight", method(http.MethodGet, h.HighlightFlow))

	// edges
	r.Handle(apiPrefix+"/edges", method(http.MethodGet, h.GetEdges))
	r.Handle(apiPrefix+"/edges/flow", method(http.MethodGet, h.ResolveEdge))

	// simulation
	r.Handle(apiPrefix+"/simulation", method(http.MethodGet, h.GetSimulation))
	r.Handle(apiPrefix+"/simulation/start", method(http.MethodPost, h.StartSimulation))
	r.Handle(apiPrefix+"/simulation/stop", method(http.MethodPost, h.StopSimulation))
	r.Handle(apiPrefix+"/simulation/runs", method(http.MethodGet, h.GetSimulationRuns))

	// status polling
	r.Handle(apiPrefix+"/status/select", method(http.MethodPost, h.SelectDevice))
	r.Handle(apiPrefix+"/status", method(http.MethodGet, h.GetStatus))
}
