package graph

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
)

const (
	maintenanceNA       = "N/A"
	maintenanceInactive = "Inactive"
	maintenanceLayout   = "02/01/2006 15:04"
	nodeIcon            = "/static/icons/icon-512.png"
)

var lastMaintenanceLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LabelText "Opening: P% | Next maintenance: D"; unknown openness renders as 0.
func LabelText(cfg domain.DeviceConfig, now time.Time) string {
	open := "0"
	if p := cfg.OpenPercent(); p != nil {
		open = strconv.FormatFloat(*p, 'f', -1, 64)
	}
	return fmt.Sprintf("Opening: %s%% | Next maintenance: %s", open, NextMaintenance(cfg, now))
}

// RenderLabel node content: icon + device id, with the label text as tooltip.
func RenderLabel(deviceID string, cfg domain.DeviceConfig, now time.Time) string {
	return fmt.Sprintf(`<div style="text-align:center;cursor:pointer;" title="%s">`+
		`<img src="%s" width="32" height="32"/>`+
		`<div style="font-size:12px;margin-top:4px;">%s</div></div>`,
		html.EscapeString(LabelText(cfg, now)), nodeIcon, html.EscapeString(deviceID))
}

// NextMaintenance next scheduled maintenance after last_maintenance (or now).
func NextMaintenance(cfg domain.DeviceConfig, now time.Time) string {
	freq, at := cfg.MaintenanceFrequency, cfg.MaintenanceTime
	if freq == "" || at == "" {
		return maintenanceNA
	}
	if cfg.MaintenanceEnabled != nil && !*cfg.MaintenanceEnabled {
		return maintenanceInactive
	}

	base := now
	if last := cfg.LastMaintenanceAt(); last != "" {
		t, ok := parseLastMaintenance(last, now.Location())
		if !ok {
			return maintenanceNA
		}
		base = t
	}

	switch strings.ToLower(freq) {
	case "daily":
		base = base.AddDate(0, 0, 1)
	case "weekly":
		base = base.AddDate(0, 0, 7)
	case "monthly":
		base = base.AddDate(0, 1, 0)
	default:
		return maintenanceNA
	}

	hh, mm, ok := parseClock(at)
	if !ok {
		return maintenanceNA
	}
	next := time.Date(base.Year(), base.Month(), base.Day(), hh, mm, 0, 0, base.Location())
	return next.Format(maintenanceLayout)
}

func parseLastMaintenance(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range lastMaintenanceLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseClock(s string) (int, int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, false
	}
	return hh, mm, true
}

// RefreshLabels re-renders every node label from the current device configs.
// Nodes whose device is unknown render with an empty config.
func RefreshLabels(g *Graph, cfgs domain.DeviceConfigs, now time.Time) {
	for _, n := range g.nodes {
		g.SetHTML(n.ID, RenderLabel(n.Name, cfgs[n.Name], now))
	}
}
