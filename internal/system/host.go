package system

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"

	"dietpi-dashboard/internal/model"
)

// HostReader gathers identity and DietPi specific state. DietPi files are
// optional: on a non-DietPi host the related fields stay empty.
type HostReader struct {
	dietpiDir string
	runDir    string
}

func NewHostReader(dietpiDir string) *HostReader {
	return &HostReader{dietpiDir: dietpiDir, runDir: "/run/dietpi"}
}

func (r *HostReader) Topic() model.Topic { return model.TopicHost }

func (r *HostReader) Read(ctx context.Context) (any, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", err)
	}
	out := model.HostInfo{
		Hostname: info.Hostname,
		Uptime:   info.Uptime,
		Arch:     normalizeArch(info.KernelArch),
		Kernel:   info.KernelVersion,
		Platform: strings.TrimSpace(info.Platform + " " + info.PlatformVersion),
	}
	if avg, loadErr := load.AvgWithContext(ctx); loadErr == nil && avg != nil {
		out.Load1, out.Load5, out.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if raw, readErr := os.ReadFile(filepath.Join(r.dietpiDir, ".version")); readErr == nil {
		out.DietPiVersion = parseDietPiVersion(string(raw))
	}
	out.Upgrades = readIntFile(filepath.Join(r.runDir, ".apt_updates"))
	out.UpdateAvailable = r.UpdateNotice()
	out.Packages = countInstalledPackages(ctx)
	return out, nil
}

// UpdateNotice returns the pending DietPi update version, if any.
func (r *HostReader) UpdateNotice() string {
	raw, err := os.ReadFile(filepath.Join(r.runDir, ".update_available"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// parseDietPiVersion turns the key=value .version file into core.sub.rc.
func parseDietPiVersion(content string) string {
	vals := map[string]string{}
	s := bufio.NewScanner(strings.NewReader(content))
	for s.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(s.Text()), "=")
		if !ok {
			continue
		}
		vals[key] = strings.Trim(value, "'\"")
	}
	core, sub, rc := vals["G_DIETPI_VERSION_CORE"], vals["G_DIETPI_VERSION_SUB"], vals["G_DIETPI_VERSION_RC"]
	if core == "" {
		return ""
	}
	if sub == "" {
		sub = "0"
	}
	if rc == "" {
		rc = "0"
	}
	return core + "." + sub + "." + rc
}

func normalizeArch(raw string) string {
	switch {
	case raw == "":
		return "unknown"
	case raw == "aarch64":
		return "arm64"
	case strings.HasPrefix(raw, "armv7"):
		return "armv7"
	case strings.HasPrefix(raw, "armv6"), raw == "arm":
		return "armv6/other"
	default:
		return raw
	}
}

func readIntFile(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return n
}

func countInstalledPackages(ctx context.Context) int {
	out, err := exec.CommandContext(ctx, "dpkg", "--get-selections").Output()
	if err != nil {
		return 0
	}
	return bytes.Count(out, []byte("\n"))
}
