package system

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"dietpi-dashboard/internal/model"
)

const DockerSocket = "/var/run/docker.sock"

// DockerAvailable reports whether a local Docker daemon socket exists.
func DockerAvailable() bool {
	_, err := os.Stat(DockerSocket)
	return err == nil
}

// ContainerReader lists Docker containers, running and stopped. The client
// is created lazily and reused.
type ContainerReader struct {
	mu  sync.Mutex
	cli *client.Client
}

func NewContainerReader() *ContainerReader {
	return &ContainerReader{}
}

func (r *ContainerReader) Topic() model.Topic { return model.TopicContainers }

func (r *ContainerReader) Read(ctx context.Context) (any, error) {
	cli, err := r.client()
	if err != nil {
		return nil, err
	}
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}
	out := model.ContainerList{Containers: make([]model.ContainerInfo, 0, len(containers))}
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}
		out.Containers = append(out.Containers, model.ContainerInfo{
			ID:      id,
			Name:    name,
			Image:   c.Image,
			Status:  c.Status,
			State:   c.State,
			Created: c.Created,
		})
	}
	sort.Slice(out.Containers, func(i, j int) bool { return out.Containers[i].Name < out.Containers[j].Name })
	return out, nil
}

func (r *ContainerReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cli == nil {
		return nil
	}
	err := r.cli.Close()
	r.cli = nil
	return err
}

func (r *ContainerReader) client() (*client.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cli != nil {
		return r.cli, nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker connect: %w", err)
	}
	r.cli = cli
	return cli, nil
}
