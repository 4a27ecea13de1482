package runtime

import (
	"slices"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestManifestGCLabels(t *testing.T) {
	m := ocispec.Manifest{
		Config: ocispec.Descriptor{
			Digest: digest.FromString("config"),
		},
		Layers: []ocispec.Descriptor{
			{Digest: digest.FromString("layer0")},
			{Digest: digest.FromString("layer1")},
		},
	}

	labels := manifestGCLabels(m)

	configLabel := labels["containerd.io/gc.ref.content.config"]
	if configLabel != m.Config.Digest.String() {
		t.Fatalf("config label = %q, want %q", configLabel, m.Config.Digest.String())
	}

	for i, layer := range m.Layers {
		key := "containerd.io/gc.ref.content.l." + string(rune('0'+i))
		got := labels[key]
		if got != layer.Digest.String() {
			t.Fatalf("labels[%q] = %q, want %q", key, got, layer.Digest.String())
		}
	}

	if len(labels) != 3 {
		t.Fatalf("len(labels) = %d, want 3", len(labels))
	}
}

func TestManifestGCLabelsNoLayers(t *testing.T) {
	m := ocispec.Manifest{
		Config: ocispec.Descriptor{
			Digest: digest.FromString("config-only"),
		},
	}

	labels := manifestGCLabels(m)
	if len(labels) != 1 {
		t.Fatalf("len(labels) = %d, want 1", len(labels))
	}
	if labels["containerd.io/gc.ref.content.config"] != m.Config.Digest.String() {
		t.Fatal("config label mismatch")
	}
}

func TestApplyImageConfig(t *testing.T) {
	dst := ocispec.ImageConfig{
		Env:        []string{"PATH=/usr/local/bin:/usr/bin", "LANG=C.UTF-8"},
		Cmd:        []string{"python3"},
		WorkingDir: "/",
		Labels:     map[string]string{"maintainer": "base"},
	}

	applyImageConfig(&dst, ImageConfig{
		Entrypoint: []string{"python", "app.py"},
		Env:        []string{"LANG=en_US.UTF-8", "FLASK_ENV=production"},
		WorkingDir: "/app",
		Ports:      []int{5000},
		Labels:     map[string]string{"io.cruciblehq.cruxgate.verification": "passed"},
	})

	if !slices.Equal(dst.Entrypoint, []string{"python", "app.py"}) {
		t.Errorf("Entrypoint = %v", dst.Entrypoint)
	}
	if dst.Cmd != nil {
		t.Errorf("Cmd = %v, want cleared by entrypoint", dst.Cmd)
	}
	wantEnv := []string{"PATH=/usr/local/bin:/usr/bin", "LANG=en_US.UTF-8", "FLASK_ENV=production"}
	if !slices.Equal(dst.Env, wantEnv) {
		t.Errorf("Env = %v, want %v", dst.Env, wantEnv)
	}
	if dst.WorkingDir != "/app" {
		t.Errorf("WorkingDir = %q", dst.WorkingDir)
	}
	if _, ok := dst.ExposedPorts["5000/tcp"]; !ok || len(dst.ExposedPorts) != 1 {
		t.Errorf("ExposedPorts = %v, want 5000/tcp", dst.ExposedPorts)
	}
	if dst.Labels["maintainer"] != "base" || dst.Labels["io.cruciblehq.cruxgate.verification"] != "passed" {
		t.Errorf("Labels = %v", dst.Labels)
	}
}

func TestApplyImageConfigEntrypointAndCmd(t *testing.T) {
	dst := ocispec.ImageConfig{Entrypoint: []string{"/docker-entrypoint.sh"}, Cmd: []string{"python3"}}

	applyImageConfig(&dst, ImageConfig{Entrypoint: []string{"gunicorn"}, Cmd: []string{"app:app"}})

	if !slices.Equal(dst.Entrypoint, []string{"gunicorn"}) || !slices.Equal(dst.Cmd, []string{"app:app"}) {
		t.Fatalf("Entrypoint = %v, Cmd = %v", dst.Entrypoint, dst.Cmd)
	}
}

func TestApplyImageConfigZeroValue(t *testing.T) {
	dst := ocispec.ImageConfig{Cmd: []string{"python3"}, WorkingDir: "/"}

	applyImageConfig(&dst, ImageConfig{})

	if !slices.Equal(dst.Cmd, []string{"python3"}) || dst.WorkingDir != "/" {
		t.Fatalf("zero config changed image: %+v", dst)
	}
	if dst.ExposedPorts != nil || dst.Labels != nil {
		t.Fatalf("zero config allocated maps: %+v", dst)
	}
}
