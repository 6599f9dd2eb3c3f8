package watchman_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghostwatch/poltergeist/pkg/interfaces"
	"github.com/ghostwatch/poltergeist/pkg/logger"
	"github.com/ghostwatch/poltergeist/pkg/types"
	"github.com/ghostwatch/poltergeist/pkg/watchman"
)

func TestClient_WatchProjectFallback(t *testing.T) {
	tmpDir := t.TempDir()
	log := logger.CreateLogger("", "info")

	os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte("package main"), 0644)

	client := watchman.NewClient(log)
	if err := client.WatchProject(tmpDir); err != nil {
		t.Fatalf("watch project: %v", err)
	}

	var got watchman.FileEvent
	done := make(chan struct{})
	err := client.Subscribe(tmpDir, "test-sub", interfaces.SubscriptionConfig{
		Expression: []interface{}{"allof", []interface{}{"match", "*.go"}},
	}, func(changes []interfaces.FileChange) {
		if len(changes) > 0 {
			got = watchman.FileEvent{Path: changes[0].Name}
			close(done)
		}
	}, nil)
	if err != nil {
		t.Skip("watchman/fsnotify not available in this environment")
	}

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte("package main\n\nfunc main() {}"), 0644)

	select {
	case <-done:
		if got.Path == "" {
			t.Error("expected a non-empty changed path")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for file event")
	}

	if err := client.Unsubscribe("test-sub"); err != nil {
		t.Errorf("unsubscribe: %v", err)
	}
}

func TestClient_GetVersion(t *testing.T) {
	log := logger.CreateLogger("", "info")
	client := watchman.NewClient(log)

	version, err := client.GetVersion()
	if err != nil {
		t.Skip("watchman not available")
	}
	if version == "" {
		t.Error("expected non-empty version")
	}
}

func TestClient_IsConnected(t *testing.T) {
	log := logger.CreateLogger("", "info")
	client := watchman.NewClient(log)
	defer client.Disconnect()

	_ = client.IsConnected()
}

func TestConfigManager_CreateExclusionExpressions(t *testing.T) {
	config := &types.WatchmanConfig{
		UseDefaultExclusions: true,
		ExcludeDirs:          []string{"custom_dir"},
	}

	cm := watchman.NewConfigManager(".", nil)
	poltergeistConfig := &types.PoltergeistConfig{
		Targets:  []json.RawMessage{},
		Watchman: config,
	}
	exclusions := cm.CreateExclusionExpressions(poltergeistConfig)

	expectedDefaults := []string{".git", "node_modules", "vendor"}
	for _, def := range expectedDefaults {
		found := false
		for _, exc := range exclusions {
			for _, pattern := range exc.Patterns {
				if pattern == def {
					found = true
				}
			}
		}
		if !found {
			t.Errorf("expected default exclusion %s", def)
		}
	}

	found := false
	for _, exc := range exclusions {
		for _, pattern := range exc.Patterns {
			if pattern == "custom_dir" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected custom exclusion custom_dir")
	}
}

func TestConfigManager_EnsureConfigUpToDate(t *testing.T) {
	tmpDir := t.TempDir()
	log := logger.CreateLogger("", "info")
	cm := watchman.NewConfigManager(tmpDir, log)

	config := &types.PoltergeistConfig{
		Targets:  []json.RawMessage{},
		Watchman: &types.WatchmanConfig{UseDefaultExclusions: true},
	}

	if err := cm.EnsureConfigUpToDate(config); err != nil {
		t.Fatalf("ensure config: %v", err)
	}

	path := filepath.Join(tmpDir, ".watchmanconfig")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected .watchmanconfig to be written: %v", err)
	}

	info1, _ := os.Stat(path)
	time.Sleep(10 * time.Millisecond)
	if err := cm.EnsureConfigUpToDate(config); err != nil {
		t.Fatalf("ensure config (second call): %v", err)
	}
	info2, _ := os.Stat(path)
	if info1.ModTime() != info2.ModTime() {
		t.Error("expected unchanged config to leave .watchmanconfig untouched")
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid .watchmanconfig json: %v", err)
	}
}

func TestConfigManager_ValidateWatchPattern(t *testing.T) {
	cm := watchman.NewConfigManager("/proj", nil)

	if err := cm.ValidateWatchPattern(""); err == nil {
		t.Error("expected error for empty pattern")
	}
	if err := cm.ValidateWatchPattern("/other/escape"); err == nil {
		t.Error("expected error for pattern escaping project root")
	}
	if err := cm.ValidateWatchPattern("src/**/*.go"); err != nil {
		t.Errorf("expected valid pattern to pass: %v", err)
	}
}

func TestConfigManager_NormalizeWatchPattern(t *testing.T) {
	cm := watchman.NewConfigManager("/proj", nil)

	if got := cm.NormalizeWatchPattern("*.go"); got != "*.go" {
		t.Errorf("expected glob pattern untouched, got %s", got)
	}
	if got := cm.NormalizeWatchPattern("src"); got == "src" {
		t.Error("expected relative path to be joined to project root")
	}
}

func TestExpressionBuilders(t *testing.T) {
	expr := watchman.AllOfExpression(
		watchman.MatchExpression("*.go", false),
		watchman.NotExpression(watchman.AnyOfExpression(
			watchman.MatchExpression("node_modules", false),
		)),
	)

	data, err := json.Marshal(expr)
	if err != nil {
		t.Fatalf("marshal expression: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty expression JSON")
	}
}

func TestConvertWatchmanFile(t *testing.T) {
	event := watchman.ConvertWatchmanFile("/root", watchman.WatchmanFile{
		Name:   "main.go",
		Exists: true,
		New:    true,
		Type:   "f",
	})
	if event.Path != filepath.Join("/root", "main.go") {
		t.Errorf("unexpected path: %s", event.Path)
	}
	if event.Type != watchman.FileCreated {
		t.Errorf("expected created event, got %v", event.Type)
	}

	deleted := watchman.ConvertWatchmanFile("/root", watchman.WatchmanFile{
		Name:   "gone.go",
		Exists: false,
	})
	if deleted.Type != watchman.FileDeleted {
		t.Errorf("expected deleted event, got %v", deleted.Type)
	}
}
