package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dietpi-dashboard/internal/model"
)

func TestParseDietPiVersion(t *testing.T) {
	content := "G_DIETPI_VERSION_CORE=8\nG_DIETPI_VERSION_SUB=22\nG_DIETPI_VERSION_RC=3\nG_GITBRANCH='master'\n"
	assert.Equal(t, "8.22.3", parseDietPiVersion(content))
	assert.Equal(t, "9.0.0", parseDietPiVersion("G_DIETPI_VERSION_CORE=9\n"))
	assert.Equal(t, "", parseDietPiVersion("garbage"))
}

func TestNormalizeArch(t *testing.T) {
	assert.Equal(t, "arm64", normalizeArch("aarch64"))
	assert.Equal(t, "armv7", normalizeArch("armv7l"))
	assert.Equal(t, "armv6/other", normalizeArch("armv6l"))
	assert.Equal(t, "x86_64", normalizeArch("x86_64"))
	assert.Equal(t, "unknown", normalizeArch(""))
}

func TestSortProcesses(t *testing.T) {
	records := []model.ProcessRecord{
		{PID: 30, CPUPercent: 1},
		{PID: 20, CPUPercent: 5},
		{PID: 10, CPUPercent: 1},
	}
	sortProcesses(records)
	assert.Equal(t, []int32{20, 10, 30}, []int32{records[0].PID, records[1].PID, records[2].PID})
}

func TestNormalizeProcessState(t *testing.T) {
	assert.Equal(t, "sleeping", normalizeProcessState("sleep"))
	assert.Equal(t, "stopped", normalizeProcessState("stop"))
	assert.Equal(t, "zombie", normalizeProcessState("Z"))
	assert.Equal(t, "lock", normalizeProcessState("lock"))
}

func TestParseSystemdUnits(t *testing.T) {
	output := `cron.service                 loaded    active   running Regular background program processing daemon
dropbear.service             loaded    failed   failed  Lightweight SSH server
● ghost.service              not-found inactive dead    ghost.service
ifup@eth0.service            loaded    active   exited  ifup for eth0
systemd-fsck-root.service    loaded    inactive dead    File System Check on Root Device
dev-sda1.device              loaded    active   plugged /dev/sda1
`
	services := parseSystemdUnits(output)
	require.Len(t, services, 4)
	assert.Equal(t, model.ServiceInfo{Name: "cron", Status: "running"}, services[0])
	assert.Equal(t, "failed", services[1].Status)
	assert.Equal(t, "ifup@eth0", services[2].Name)
	assert.Equal(t, "exited", services[2].Status)
	assert.Equal(t, "dead", services[3].Status)
}

func TestParseSoftwareList(t *testing.T) {
	output := "\x1b[32mDietPi-Software\x1b[0m list\n" +
		"\x1b[32mID 0\x1b[0m | =0 | OpenSSH Client: Feature-rich SSH, SFTP and SCP client | +Dependency | https://dietpi.com/docs/software/ssh/\n" +
		"\x1b[32mID 17\x1b[0m | =2 | Git: Clone and manage Git repositories locally | +Dependency | https://dietpi.com/docs/software/programming/#git\n" +
		"ID 20 | =0 | Chromium: web browser for desktop | DISABLED | https://dietpi.com/docs/\n" +
		"ID 97 | =1 | OpenVPN: Server and client | | https://dietpi.com/docs/software/vpn/\n"

	list := parseSoftwareList(output)
	require.Len(t, list, 3)
	assert.Equal(t, model.SoftwareInfo{
		ID:           0,
		Installed:    false,
		Name:         "OpenSSH Client",
		Description:  "Feature-rich SSH, SFTP and SCP client",
		Dependencies: "+Dependency",
		Docs:         "https://dietpi.com/docs/software/ssh/",
	}, list[0])
	assert.True(t, list[1].Installed)
	assert.Equal(t, "Git", list[1].Name)
	assert.Equal(t, 97, list[2].ID)
	assert.Empty(t, list[2].Dependencies)
}
