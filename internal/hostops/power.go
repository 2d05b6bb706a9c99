package hostops

import (
	"context"

	"dietpi-dashboard/internal/model"
)

// Power reboots or halts the host through systemd.
type Power struct {
	systemctl string
	limit     int
}

func NewPower(outputLimit int) *Power {
	return &Power{systemctl: "systemctl", limit: outputLimit}
}

func (p *Power) Power(ctx context.Context, action string) (model.ExecOutput, error) {
	return run(ctx, p.limit, nil, p.systemctl, action)
}
