package cli

import (
	"encoding/json"
	"testing"
)

func TestCommandSurfaceJSON(t *testing.T) {
	data, err := CommandSurfaceJSON()
	if err != nil {
		t.Fatalf("CommandSurfaceJSON: %v", err)
	}

	var manifest SurfaceManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}

	if manifest.CLI != "berth" {
		t.Errorf("cli = %q, want berth", manifest.CLI)
	}

	names := make(map[string]bool)
	for _, c := range manifest.Commands {
		names[c.Name] = true
	}
	for _, want := range []string{"init", "up", "down", "ps", "logs", "peers", "config", "events", "rm", "use", "version"} {
		if !names[want] {
			t.Errorf("surface manifest missing command %q", want)
		}
	}
	if names["surface"] {
		t.Error("hidden commands should not appear in the manifest")
	}

	flags := make(map[string]bool)
	for _, f := range manifest.GlobalFlags {
		flags[f.Long] = true
	}
	for _, want := range []string{"json", "jsonl", "quiet", "watch"} {
		if !flags[want] {
			t.Errorf("surface manifest missing global flag %q", want)
		}
	}
}

func TestSurfaceFlagsIncludeShorthand(t *testing.T) {
	data, err := CommandSurfaceJSON()
	if err != nil {
		t.Fatalf("CommandSurfaceJSON: %v", err)
	}

	var manifest SurfaceManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, f := range manifest.GlobalFlags {
		if f.Long == "quiet" && f.Short != "q" {
			t.Errorf("quiet shorthand = %q, want q", f.Short)
		}
	}
}
