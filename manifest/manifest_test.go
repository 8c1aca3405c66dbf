package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "weft.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[advice]
class = "trace/Timing.class"
exceptional = false
suppress = "java/lang/RuntimeException"

[target]
classes = ["build/app/Service.class", "build/app/Worker.class"]
methods = ["handle", "process"]
output = "out"

[markers]
enter = "com/acme/Before"
exit = "com/acme/After"

[report]
output = "weave.cbor"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Advice.Class != "trace/Timing.class" {
		t.Errorf("advice class = %q", m.Advice.Class)
	}
	if m.Advice.ExceptionalOrDefault() {
		t.Error("exceptional should be false when set explicitly")
	}
	if m.Advice.Suppress != "java/lang/RuntimeException" {
		t.Errorf("suppress = %q", m.Advice.Suppress)
	}
	if len(m.Target.Classes) != 2 || m.Target.Classes[1] != "build/app/Worker.class" {
		t.Errorf("target classes = %v", m.Target.Classes)
	}
	if m.Target.Output != "out" {
		t.Errorf("output = %q", m.Target.Output)
	}
	if m.Markers.Enter != "com/acme/Before" || m.Markers.Exit != "com/acme/After" {
		t.Errorf("markers = %+v", m.Markers)
	}
	if m.Report.Output != "weave.cbor" {
		t.Errorf("report output = %q", m.Report.Output)
	}
	if !filepath.IsAbs(m.Dir) {
		t.Errorf("Dir = %q, want absolute", m.Dir)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[advice]
class = "trace/Timing.class"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Target.Output != "woven" {
		t.Errorf("default output = %q, want woven", m.Target.Output)
	}
	if !m.Advice.ExceptionalOrDefault() {
		t.Error("exceptional should default to true")
	}
	if m.Advice.Suppress != "" {
		t.Errorf("suppress = %q, want empty", m.Advice.Suppress)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of an empty directory should fail")
	}
}

func TestLoadBadToml(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[advice\nclass =")
	if _, err := Load(dir); err == nil {
		t.Error("Load of malformed toml should fail")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[advice]
class = "trace/Timing.class"
`)
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil for a directory under a manifest")
	}
	if m.Advice.Class != "trace/Timing.class" {
		t.Errorf("advice class = %q", m.Advice.Class)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("FindAndLoad = %+v, want nil", m)
	}
}

func TestMatchesMethod(t *testing.T) {
	m := &Manifest{}
	if !m.MatchesMethod("anything") {
		t.Error("empty filter should match every method")
	}

	m.Target.Methods = []string{"handle", "process"}
	if !m.MatchesMethod("handle") || !m.MatchesMethod("process") {
		t.Error("listed methods should match")
	}
	if m.MatchesMethod("other") {
		t.Error("unlisted method should not match")
	}
}
