package watchman

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghostwatch/poltergeist/pkg/interfaces"
	"github.com/ghostwatch/poltergeist/pkg/logger"
	"github.com/ghostwatch/poltergeist/pkg/types"
)

// ConfigManager owns the .watchmanconfig file and the exclusion/pattern
// rules derived from a project's PoltergeistConfig.
type ConfigManager struct {
	projectRoot string
	logger      logger.Logger
}

func NewConfigManager(projectRoot string, log logger.Logger) *ConfigManager {
	return &ConfigManager{projectRoot: projectRoot, logger: log}
}

type watchmanConfigFile struct {
	Ignore []string `json:"ignore_dirs,omitempty"`
	Root   string   `json:"root-restrict-files,omitempty"`
}

// EnsureConfigUpToDate writes or refreshes .watchmanconfig at the project
// root so a native watchman instance (if present) skips the same
// directories the fsnotify fallback excludes.
func (m *ConfigManager) EnsureConfigUpToDate(config *types.PoltergeistConfig) error {
	path := filepath.Join(m.projectRoot, ".watchmanconfig")

	ignore := []string{}
	if config.Watchman == nil || config.Watchman.UseDefaultExclusions {
		ignore = append(ignore, defaultIgnoreDirs...)
	}
	if config.Watchman != nil {
		ignore = append(ignore, config.Watchman.ExcludeDirs...)
	}

	data, err := json.MarshalIndent(watchmanConfigFile{Ignore: dedupe(ignore)}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal watchman config: %w", err)
	}

	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == string(data) {
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write .watchmanconfig: %w", err)
	}
	m.logger.Debug("refreshed .watchmanconfig", logger.WithField("path", path))
	return nil
}

// SuggestOptimizations inspects the configured watch paths and exclusions
// and flags patterns likely to cause excessive watchman recrawls or
// fsnotify descriptor exhaustion.
func (m *ConfigManager) SuggestOptimizations() ([]string, error) {
	var suggestions []string

	for _, dir := range []string{"node_modules", "vendor", ".git", "dist", "build", "target"} {
		if info, err := os.Stat(filepath.Join(m.projectRoot, dir)); err == nil && info.IsDir() {
			suggestions = append(suggestions,
				fmt.Sprintf("directory %q exists and should stay in watchman/fsnotify exclusions to avoid a large recrawl", dir))
		}
	}

	entries, err := os.ReadDir(m.projectRoot)
	if err != nil {
		return suggestions, fmt.Errorf("failed to read project root: %w", err)
	}
	var topLevelDirs int
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			topLevelDirs++
		}
	}
	if topLevelDirs > 20 {
		suggestions = append(suggestions,
			"project root has more than 20 top-level directories; consider narrowing watchPaths per target instead of watching the whole tree")
	}

	return suggestions, nil
}

// CreateExclusionExpressions builds the exclusion list a subscription's
// expression tree is built from: custom excludeDirs plus, unless
// disabled, the shared default set.
func (m *ConfigManager) CreateExclusionExpressions(config *types.PoltergeistConfig) []interfaces.ExclusionExpression {
	var exclusions []interfaces.ExclusionExpression

	if config.Watchman != nil {
		for _, dir := range config.Watchman.ExcludeDirs {
			exclusions = append(exclusions, interfaces.ExclusionExpression{
				Type:     "dirname",
				Patterns: []string{dir},
			})
		}
	}

	if config.Watchman == nil || config.Watchman.UseDefaultExclusions {
		for _, pattern := range defaultIgnoreDirs {
			exclusions = append(exclusions, interfaces.ExclusionExpression{
				Type:     "dirname",
				Patterns: []string{pattern},
			})
		}
	}

	return exclusions
}

// NormalizeWatchPattern resolves a configured watch path to the form C2's
// expression builder expects: an absolute anchor for bare paths, untouched
// for anything already a glob.
func (m *ConfigManager) NormalizeWatchPattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)

	if strings.Contains(pattern, "*") {
		return pattern
	}
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(m.projectRoot, pattern)
	}
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		return filepath.Join(pattern, "**", "*")
	}
	return pattern
}

// ValidateWatchPattern rejects patterns that can't possibly be useful:
// empty, absolute outside the project root, or containing a null byte.
func (m *ConfigManager) ValidateWatchPattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("empty watch pattern")
	}
	if strings.ContainsRune(pattern, 0) {
		return fmt.Errorf("watch pattern contains an invalid null byte: %q", pattern)
	}
	if filepath.IsAbs(pattern) && !strings.HasPrefix(pattern, m.projectRoot) {
		return fmt.Errorf("watch pattern %q escapes project root %q", pattern, m.projectRoot)
	}
	return nil
}

var defaultIgnoreDirs = []string{
	"node_modules", ".git", "vendor", "build", "dist", "target",
	".next", ".nuxt", ".cache", "coverage", ".vscode",
	".idea", "tmp", "temp", ".poltergeist",
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
