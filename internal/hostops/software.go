package hostops

import (
	"context"
	"path/filepath"
	"strconv"

	"dietpi-dashboard/internal/model"
)

// Software drives dietpi-software non-interactively.
type Software struct {
	binary string
	limit  int
}

func NewSoftware(dietpiDir string, outputLimit int) *Software {
	return &Software{binary: filepath.Join(dietpiDir, "dietpi-software"), limit: outputLimit}
}

func (s *Software) Apply(ctx context.Context, action string, ids []int) (model.ExecOutput, error) {
	args := make([]string, 0, len(ids)+1)
	args = append(args, action)
	for _, id := range ids {
		args = append(args, strconv.Itoa(id))
	}
	return run(ctx, s.limit, []string{"G_INTERACTIVE=0"}, s.binary, args...)
}
