package panel

import (
	"context"
	"strings"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"

	"go.uber.org/zap"
)

// ZoneCommandRequest target is either a single device or every device of a zone.
type ZoneCommandRequest struct {
	Zone     string `json:"zone"`
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
}

type ZoneCommandResult struct {
	Command string   `json:"command"`
	Sent    []string `json:"sent"`
	Failed  []string `json:"failed"`
}

// SendZoneCommand sends the command to each target in turn; a failing device does not
// stop the others. An unknown zone is an empty result.
func (s *Session) SendZoneCommand(ctx context.Context, req ZoneCommandRequest) (ZoneCommandResult, error) {
	cmd := strings.TrimSpace(req.Command)
	if err := domain.ValidateCommand(cmd); err != nil {
		return ZoneCommandResult{}, err
	}

	var targets []string
	switch {
	case req.DeviceID != "":
		targets = []string{req.DeviceID}
	case req.Zone != "":
		zones, err := s.backend.ZonesDevices(ctx)
		if err != nil {
			return ZoneCommandResult{}, err
		}
		targets = zones[req.Zone].Devices
	default:
		return ZoneCommandResult{}, domain.NewValidationError("zone or device_id is required")
	}

	res := ZoneCommandResult{Command: cmd, Sent: []string{}, Failed: []string{}}
	for _, dev := range targets {
		err := s.backend.SetCommand(ctx, dev, cmd)
		s.metrics.ObserveCommand("zone", err)
		if err != nil {
			s.logger.Warn("Zone command failed",
				zap.String("zone", req.Zone),
				zap.String("device_id", dev),
				zap.String("command", cmd),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, dev)
			continue
		}
		res.Sent = append(res.Sent, dev)
	}
	s.logger.Info("Zone command sent",
		zap.String("zone", req.Zone),
		zap.String("command", cmd),
		zap.Int("sent", len(res.Sent)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}
