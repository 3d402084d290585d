package docker

import (
	"context"
	"fmt"
	"strings"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/sirupsen/logrus"

	"rask-log-pipeline/internal/model"
)

// excludedLabelPrefixes mirrors the teacher's enrichment filter: labels that
// are Docker/Compose/OCI bookkeeping rather than service identity and would
// just add noise to every record's label set.
var excludedLabelPrefixes = []string{
	"com.docker.compose.",
	"org.opencontainers.",
	"desktop.docker.io/",
}

// serviceLabelKeys are checked, in order, for the logical service name. The
// first present label wins; if none are set the short container ID is used
// so a container is never silently dropped from the pipeline.
var serviceLabelKeys = []string{
	"com.docker.compose.service",
	"rask.service.name",
	"rask.service",
}

// serviceGroupLabelKeys mirrors serviceLabelKeys for the optional service
// group, surfaced downstream as OTLP's service.namespace resource attribute.
var serviceGroupLabelKeys = []string{
	"com.docker.compose.project",
	"rask.service.group",
}

// Discoverer lists running containers via the Docker Engine API and builds
// the immutable ContainerDescriptor the rest of the pipeline keys off of.
type Discoverer struct {
	hdc    *HTTPDockerClient
	logger *logrus.Logger
}

// NewDiscoverer wraps an already-constructed HTTPDockerClient, so every
// ContainerList call reuses that client's pooled connection.
func NewDiscoverer(hdc *HTTPDockerClient, logger *logrus.Logger) *Discoverer {
	return &Discoverer{hdc: hdc, logger: logger}
}

// ListContainers returns a ContainerDescriptor for every running container,
// skipping any container lacking an identifiable ID (never emitted by
// Docker, but guarded against defensively).
func (d *Discoverer) ListContainers(ctx context.Context) ([]model.ContainerDescriptor, error) {
	summaries, err := d.hdc.Client().ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	descriptors := make([]model.ContainerDescriptor, 0, len(summaries))
	for _, c := range summaries {
		if c.ID == "" {
			continue
		}
		descriptors = append(descriptors, DescriptorFromSummary(c))
	}
	return descriptors, nil
}

// DescriptorFromSummary converts one Docker container summary into a
// ContainerDescriptor, applying the service-name/group label lookup and the
// bookkeeping-label filter.
func DescriptorFromSummary(c dockertypes.Container) model.ContainerDescriptor {
	labels := filterLabels(c.Labels)

	return model.ContainerDescriptor{
		ContainerID:  c.ID,
		ServiceName:  resolveServiceName(c.ID, c.Labels),
		ServiceGroup: firstLabel(c.Labels, serviceGroupLabelKeys),
		Labels:       labels,
	}
}

func resolveServiceName(containerID string, labels map[string]string) string {
	if name := firstLabel(labels, serviceLabelKeys); name != "" {
		return name
	}
	if len(containerID) >= 12 {
		return containerID[:12]
	}
	return containerID
}

func firstLabel(labels map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := labels[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func filterLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		if shouldIncludeLabel(k) {
			out[k] = v
		}
	}
	return out
}

func shouldIncludeLabel(key string) bool {
	for _, prefix := range excludedLabelPrefixes {
		if strings.HasPrefix(key, prefix) {
			return false
		}
	}
	return true
}
