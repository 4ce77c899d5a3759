package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/CerneaMihnea/smart-valve-control/internal/backend"
	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/flow"
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"
	"github.com/CerneaMihnea/smart-valve-control/internal/panel"
	"github.com/CerneaMihnea/smart-valve-control/internal/poller"
	"github.com/CerneaMihnea/smart-valve-control/internal/repository"
	"github.com/CerneaMihnea/smart-valve-control/internal/simulation"

	"go.uber.org/zap"
)

// Panel operator session operations exposed over HTTP
type Panel interface {
	Graph() panel.GraphView
	Export() graph.Export
	Load(ctx context.Context) error
	Save(ctx context.Context) error
	AddNode(deviceID string, x, y float64) (graph.Node, error)
	MoveNode(id domain.NodeID, x, y, width, height float64) error
	RemoveNode(id domain.NodeID) error
	Connect(from, to domain.NodeID) error
	Disconnect(from, to domain.NodeID) int
	SetViewport(transform string)

	Zones() panel.ZonesView
	ResetZones() panel.ZonesView
	SetZonesVisible(visible bool) panel.ZonesView
	SendZoneCommand(ctx context.Context, req panel.ZoneCommandRequest) (panel.ZoneCommandResult, error)

	Flows() []domain.Flow
	CreateFlow(ctx context.Context, req flow.BuildRequest) (domain.Flow, error)
	Highlight(name string) (flow.Highlight, bool)
	Edges() []flow.CanonicalEdge
	ResolveEdge(from, to domain.NodeID) (panel.EdgeFlows, bool)

	Simulation() simulation.Snapshot
	StartSimulation(ctx context.Context, from, to domain.NodeID) (simulation.Snapshot, error)
	StopSimulation(ctx context.Context) (simulation.StopResult, error)
	SimulationRuns(ctx context.Context, limit int) ([]repository.SimulationRun, error)

	SelectDevice(deviceID string)
	Status() (poller.Reading, bool)
}

type PanelHandler struct {
	panel  Panel
	logger *zap.Logger
}

func NewPanelHandler(p Panel, logger *zap.Logger) *PanelHandler {
	return &PanelHandler{panel: p, logger: logger}
}

type addNodeRequest struct {
	DeviceID string  `json:"device_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type moveNodeRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type edgeRequest struct {
	From domain.NodeID `json:"from"`
	To   domain.NodeID `json:"to"`
}

type viewportRequest struct {
	Transform string `json:"transform"`
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

type selectDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

func (h *PanelHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.panel.Graph()))
}

func (h *PanelHandler) ExportGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.panel.Export()))
}

func (h *PanelHandler) LoadGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Load(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.panel.Graph()))
}

func (h *PanelHandler) SaveGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Save(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"saved": true, "zones": h.panel.Zones()}))
}

func (h *PanelHandler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	n, err := h.panel.AddNode(req.DeviceID, req.X, req.Y)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(n))
}

func (h *PanelHandler) MoveNode(w http.ResponseWriter, r *http.Request, id string) {
	var req moveNodeRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if err := h.panel.MoveNode(domain.NormalizeNodeID(id), req.X, req.Y, req.Width, req.Height); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.panel.Zones()))
}

func (h *PanelHandler) RemoveNode(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.panel.RemoveNode(domain.NormalizeNodeID(id)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"removed": true}))
}

func (h *PanelHandler) Connect(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readEdge(w, r)
	if !ok {
		return
	}
	if err := h.panel.Connect(req.From, req.To); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(req))
}

func (h *PanelHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readEdge(w, r)
	if !ok {
		return
	}
	n := h.panel.Disconnect(req.From, req.To)
	writeJSON(w, http.StatusOK, Ok(map[string]int{"removed": n}))
}

// readEdge body {from,to}, or ?from=&to= for DELETE without body
func (h *PanelHandler) readEdge(w http.ResponseWriter, r *http.Request) (edgeRequest, bool) {
	var req edgeRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return edgeRequest{}, false
	}
	q := r.URL.Query()
	if req.From == "" {
		req.From = domain.NormalizeNodeID(q.Get("from"))
	}
	if req.To == "" {
		req.To = domain.NormalizeNodeID(q.Get("to"))
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, Fail("from and to are required"))
		return edgeRequest{}, false
	}
	return req, true
}

func (h *PanelHandler) SetViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	h.panel.SetViewport(req.Transform)
	writeJSON(w, http.StatusOK, Ok(req))
}

func (h *PanelHandler) GetZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.panel.Zones()))
}

func (h *PanelHandler) ResetZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.panel.ResetZones()))
}

func (h *PanelHandler) SetZonesVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.panel.SetZonesVisible(req.Visible)))
}

func (h *PanelHandler) ZoneCommand(w http.ResponseWriter, r *http.Request) {
	var req panel.ZoneCommandRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	res, err := h.panel.SendZoneCommand(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

func (h *PanelHandler) GetFlows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.panel.Flows()))
}

func (h *PanelHandler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var req flow.BuildRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	f, err := h.panel.CreateFlow(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(f))
}

func (h *PanelHandler) ExportFlows(w http.ResponseWriter, r *http.Request) {
	data, err := GenerateFlowExport(h.panel.Flows())
	if err != nil {
		h.logger.Error("Generate flow export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}
	filename := "flows_" + time.Now().Format("20060102_150405") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *PanelHandler) HighlightFlow(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("flow")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, Fail("flow is required"))
		return
	}
	hl, ok := h.panel.Highlight(name)
	if !ok {
		writeJSON(w, http.StatusOK, Empty("flow not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(hl))
}

func (h *PanelHandler) GetEdges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.panel.Edges()))
}

// ResolveEdge an edge without a flow is a normal empty answer
func (h *PanelHandler) ResolveEdge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := domain.NormalizeNodeID(q.Get("from")), domain.NormalizeNodeID(q.Get("to"))
	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, Fail("from and to are required"))
		return
	}
	ef, ok := h.panel.ResolveEdge(from, to)
	if !ok {
		writeJSON(w, http.StatusOK, Empty("no simulation available for this edge"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(ef))
}

func (h *PanelHandler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.panel.Simulation()))
}

func (h *PanelHandler) StartSimulation(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readEdge(w, r)
	if !ok {
		return
	}
	snap, err := h.panel.StartSimulation(r.Context(), req.From, req.To)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(snap))
}

func (h *PanelHandler) StopSimulation(w http.ResponseWriter, r *http.Request) {
	res, err := h.panel.StopSimulation(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

func (h *PanelHandler) GetSimulationRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	runs, err := h.panel.SimulationRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(runs))
}

func (h *PanelHandler) SelectDevice(w http.ResponseWriter, r *http.Request) {
	var req selectDeviceRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	h.panel.SelectDevice(req.DeviceID)
	writeJSON(w, http.StatusOK, Ok(req))
}

func (h *PanelHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	reading, ok := h.panel.Status()
	if !ok {
		writeJSON(w, http.StatusOK, Empty("no device selected"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(reading))
}

// writeError validation 400, state conflict 409, no flow 404, backend 502, else 500
func (h *PanelHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, simulation.ErrAlreadyRunning),
		errors.Is(err, simulation.ErrNotRunning),
		errors.Is(err, simulation.ErrStopped):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.Is(err, flow.ErrNoFlow):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	case backend.IsNetwork(err):
		h.logger.Warn("Device backend request failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail("device backend request failed"))
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}
