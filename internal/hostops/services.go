package hostops

import (
	"context"

	"dietpi-dashboard/internal/model"
)

// Services controls systemd units.
type Services struct {
	systemctl string
	limit     int
}

func NewServices(outputLimit int) *Services {
	return &Services{systemctl: "systemctl", limit: outputLimit}
}

func (s *Services) Control(ctx context.Context, action, unit string) (model.ExecOutput, error) {
	return run(ctx, s.limit, nil, s.systemctl, action, "--", unit)
}
