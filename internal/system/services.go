package system

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"dietpi-dashboard/internal/model"
)

type ServiceReader struct {
	systemctl string
}

func NewServiceReader() *ServiceReader {
	return &ServiceReader{systemctl: "systemctl"}
}

func (r *ServiceReader) Topic() model.Topic { return model.TopicServices }

func (r *ServiceReader) Read(ctx context.Context) (any, error) {
	out, err := exec.CommandContext(ctx, r.systemctl, "list-units", "--type=service", "--all", "--no-pager", "--plain", "--no-legend").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("systemctl not available: %w", model.ErrUnavailable)
		}
		return nil, fmt.Errorf("systemctl list-units: %w", err)
	}
	return model.ServiceList{Services: parseSystemdUnits(string(out))}, nil
}

// parseSystemdUnits reads `systemctl list-units --plain --no-legend` output:
// UNIT LOAD ACTIVE SUB DESCRIPTION...
func parseSystemdUnits(output string) []model.ServiceInfo {
	var services []model.ServiceInfo
	s := bufio.NewScanner(strings.NewReader(output))
	for s.Scan() {
		fields := strings.Fields(strings.TrimSpace(s.Text()))
		if len(fields) < 4 {
			continue
		}
		unit := strings.TrimPrefix(fields[0], "●")
		if !strings.HasSuffix(unit, ".service") {
			continue
		}
		if fields[1] == "not-found" {
			continue
		}
		services = append(services, model.ServiceInfo{
			Name:   strings.TrimSuffix(unit, ".service"),
			Status: normalizeServiceStatus(fields[2], fields[3]),
		})
	}
	return services
}

func normalizeServiceStatus(active, sub string) string {
	if active == "failed" || sub == "failed" {
		return "failed"
	}
	switch sub {
	case "running":
		return "running"
	case "exited":
		return "exited"
	case "dead":
		return "dead"
	case "waiting", "start-pre", "start", "start-post", "activating", "auto-restart":
		return "starting"
	default:
		return "unknown"
	}
}
