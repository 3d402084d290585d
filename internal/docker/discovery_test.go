package docker

import (
	"testing"

	dockertypes "github.com/docker/docker/api/types"
)

func containerWithLabels(id string, labels map[string]string) dockertypes.Container {
	return dockertypes.Container{ID: id, Labels: labels}
}

func TestFilterLabels_ExcludesBookkeepingPrefixes(t *testing.T) {
	labels := map[string]string{
		"com.docker.compose.service": "web",
		"com.docker.compose.project": "myapp",
		"org.opencontainers.image":   "v1",
		"desktop.docker.io/setting":  "x",
		"rask.service.group":         "keep-me",
	}
	out := filterLabels(labels)
	if _, ok := out["com.docker.compose.service"]; ok {
		t.Fatal("expected compose.service label excluded")
	}
	if _, ok := out["org.opencontainers.image"]; ok {
		t.Fatal("expected opencontainers label excluded")
	}
	if v, ok := out["rask.service.group"]; !ok || v != "keep-me" {
		t.Fatal("expected non-bookkeeping label retained")
	}
}

func TestResolveServiceName_PrefersComposeServiceLabel(t *testing.T) {
	labels := map[string]string{"com.docker.compose.service": "checkout"}
	if got := resolveServiceName("abcdef0123456789", labels); got != "checkout" {
		t.Fatalf("expected checkout, got %q", got)
	}
}

func TestResolveServiceName_FallsBackToShortContainerID(t *testing.T) {
	got := resolveServiceName("abcdef0123456789", nil)
	if got != "abcdef012345" {
		t.Fatalf("expected short container id fallback, got %q", got)
	}
}

func TestDescriptorFromSummary_PopulatesServiceGroup(t *testing.T) {
	labels := map[string]string{
		"com.docker.compose.service": "checkout",
		"com.docker.compose.project": "storefront",
	}
	d := DescriptorFromSummary(containerWithLabels("c1", labels))
	if d.ServiceName != "checkout" || d.ServiceGroup != "storefront" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}
