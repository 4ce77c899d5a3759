package domain

import "encoding/json"

// NoZone 未声明 zone 的设备归入的哨兵 zone
const NoZone = "No zone"

// DefaultZoneColor 与后端 /zones-devices 的默认颜色一致
const DefaultZoneColor = "#cccccc"

// DeviceStatus /get-status/{id} 以及 device config 中的 status 快照
type DeviceStatus struct {
	OpenPercent *float64 `json:"status_open_percent"`
	LastCommand string   `json:"last_command,omitempty"`
}

// DeviceConfig /get-devices-config 中单个设备（只读）
type DeviceConfig struct {
	DeviceID             string        `json:"-"`
	Zone                 string        `json:"zone"`
	ZoneColor            string        `json:"zone_color"`
	Status               *DeviceStatus `json:"status,omitempty"`
	LastMaintenance      string        `json:"last_maintenance,omitempty"`
	LastMaintenanceDate  string        `json:"last_maintenance_date,omitempty"`
	MaintenanceFrequency string        `json:"maintenance_frequency,omitempty"`
	MaintenanceTime      string        `json:"maintenance_time,omitempty"`
	MaintenanceEnabled   *bool         `json:"maintenance_enabled,omitempty"`
}

// ZoneName zone 名称，空值归入 NoZone
func (d DeviceConfig) ZoneName() string {
	if d.Zone == "" {
		return NoZone
	}
	return d.Zone
}

// Color zone 颜色，空值使用默认颜色
func (d DeviceConfig) Color() string {
	if d.ZoneColor == "" {
		return DefaultZoneColor
	}
	return d.ZoneColor
}

// LastMaintenanceAt returns last_maintenance, falling back to the backend's last_maintenance_date.
func (d DeviceConfig) LastMaintenanceAt() string {
	if d.LastMaintenance != "" {
		return d.LastMaintenance
	}
	return d.LastMaintenanceDate
}

// OpenPercent current openness or nil when unknown.
func (d DeviceConfig) OpenPercent() *float64 {
	if d.Status == nil {
		return nil
	}
	return d.Status.OpenPercent
}

// DeviceConfigs keyed by device_id
type DeviceConfigs map[string]DeviceConfig

func (d *DeviceConfigs) UnmarshalJSON(b []byte) error {
	raw := map[string]DeviceConfig{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(DeviceConfigs, len(raw))
	for id, cfg := range raw {
		cfg.DeviceID = id
		out[id] = cfg
	}
	*d = out
	return nil
}

// ZoneDevices /zones-devices 中单个 zone
type ZoneDevices struct {
	Color   string   `json:"color"`
	Devices []string `json:"devices"`
}
