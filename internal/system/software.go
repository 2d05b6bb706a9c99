package system

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"dietpi-dashboard/internal/model"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// SoftwareReader lists the DietPi software catalogue with install state.
type SoftwareReader struct {
	binary string
}

func NewSoftwareReader(dietpiDir string) *SoftwareReader {
	return &SoftwareReader{binary: filepath.Join(dietpiDir, "dietpi-software")}
}

func (r *SoftwareReader) Topic() model.Topic { return model.TopicSoftware }

func (r *SoftwareReader) Read(ctx context.Context) (any, error) {
	out, err := exec.CommandContext(ctx, r.binary, "list").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", r.binary, model.ErrUnavailable)
		}
		return nil, fmt.Errorf("dietpi-software list: %w", err)
	}
	return model.SoftwareList{Software: parseSoftwareList(string(out))}, nil
}

// parseSoftwareList reads `dietpi-software list` lines of the form
//
//	ID 17 | =2 | Git: Clone and manage Git repositories | +Dependency | https://docs
//
// Header, footer and disabled entries are skipped.
func parseSoftwareList(output string) []model.SoftwareInfo {
	var list []model.SoftwareInfo
	s := bufio.NewScanner(strings.NewReader(output))
	for s.Scan() {
		line := strings.TrimSpace(ansiEscape.ReplaceAllString(s.Text(), ""))
		if !strings.HasPrefix(line, "ID ") {
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) < 3 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cols[0]), "ID")))
		if err != nil {
			continue
		}
		if len(cols) > 3 && strings.Contains(cols[3], "DISABLED") {
			continue
		}
		state, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(cols[1]), "="))
		if err != nil {
			continue
		}
		name, desc, _ := strings.Cut(strings.TrimSpace(cols[2]), ":")
		info := model.SoftwareInfo{
			ID:          id,
			Installed:   state > 0,
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(desc),
		}
		if len(cols) > 3 {
			info.Dependencies = strings.TrimSpace(cols[3])
		}
		if len(cols) > 4 {
			info.Docs = strings.TrimSpace(cols[4])
		}
		list = append(list, info)
	}
	return list
}
