// Package watchman implements C2, the file-watch adapter: a declarative
// match/allof/anyof/not expression contract served by a native watchman
// socket when available, and transparently by an fsnotify-backed walker
// otherwise.
package watchman

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ghostwatch/poltergeist/pkg/interfaces"
	"github.com/ghostwatch/poltergeist/pkg/logger"
	"github.com/ghostwatch/poltergeist/pkg/types"
)

type subscription struct {
	name       string
	root       string
	expression []interface{}
	callback   interfaces.FileChangeCallback
}

// Client is the single Client implementation of interfaces.WatchmanClient:
// it prefers a live watchman connection and falls back to fsnotify when
// one can't be established, behind the same subscribe/unsubscribe
// surface either way.
type Client struct {
	logger logger.Logger
	config *types.WatchmanConfig

	conn        *WatchmanConnection
	fsWatcher   *fsnotifyWatcher
	useWatchman bool

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	projectRoot   string

	ctx           context.Context
	cancel        context.CancelFunc
	eventChan     chan FileEvent
	settlingDelay time.Duration
}

// NewClient creates a watchman-or-fsnotify client with default settling
// behaviour.
func NewClient(log logger.Logger) *Client {
	return NewClientWithConfig(log, &types.WatchmanConfig{
		UseDefaultExclusions: true,
		SettlingDelay:        1000,
		MaxFileEvents:        1000,
	})
}

// NewClientWithConfig creates a client using the supplied watch
// configuration for exclusions and settling delay.
func NewClientWithConfig(log logger.Logger, config *types.WatchmanConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		logger:        log,
		config:        config,
		subscriptions: make(map[string]*subscription),
		ctx:           ctx,
		cancel:        cancel,
		eventChan:     make(chan FileEvent, 1000),
		settlingDelay: time.Duration(config.SettlingDelay) * time.Millisecond,
	}

	if conn, err := Connect(); err == nil {
		if version, err := conn.Version(); err == nil {
			c.conn = conn
			c.useWatchman = true
			log.Info(fmt.Sprintf("connected to watchman version %s", version))
		} else {
			conn.Close()
			log.Info("watchman connection failed, using fsnotify fallback")
		}
	} else {
		log.Info(fmt.Sprintf("watchman not available (%v), using fsnotify fallback", err))
	}

	if !c.useWatchman {
		if watcher, err := newFSNotifyWatcher(log); err == nil {
			c.fsWatcher = watcher
			if config.ExcludeDirs != nil {
				watcher.SetExclusions(config.ExcludeDirs)
			}
			if config.SettlingDelay > 0 {
				watcher.SetSettlingDelay(time.Duration(config.SettlingDelay) * time.Millisecond)
			}
		} else {
			log.Error(fmt.Sprintf("failed to create fsnotify watcher: %v", err))
		}
	}

	go c.processEvents()
	if c.useWatchman {
		go c.receiveWatchmanEvents()
	}
	return c
}

// Connect is a no-op once the backend is already selected at construction.
func (c *Client) Connect(ctx context.Context) error {
	if c.useWatchman && c.conn != nil {
		return nil
	}
	if !c.useWatchman && c.fsWatcher != nil {
		return nil
	}
	return fmt.Errorf("no file watcher available")
}

func (c *Client) Disconnect() error {
	c.cancel()
	if c.conn != nil {
		return c.conn.Close()
	}
	if c.fsWatcher != nil {
		return c.fsWatcher.Close()
	}
	return nil
}

// WatchProject roots the watch at projectPath, via watchman's
// watch-project or a recursive fsnotify directory walk.
func (c *Client) WatchProject(projectPath string) error {
	c.mu.Lock()
	c.projectRoot = projectPath
	c.mu.Unlock()

	if c.useWatchman {
		resp, err := c.conn.WatchProject(projectPath)
		if err != nil {
			return fmt.Errorf("failed to watch project: %w", err)
		}
		c.mu.Lock()
		if resp.RelativeRoot != "" {
			c.projectRoot = filepath.Join(resp.Watch, resp.RelativeRoot)
		} else {
			c.projectRoot = resp.Watch
		}
		c.mu.Unlock()
		c.logger.Info(fmt.Sprintf("watching project with watchman: %s", c.projectRoot))
		return nil
	}

	if c.fsWatcher == nil {
		return fmt.Errorf("no file watcher available")
	}
	if err := c.fsWatcher.WatchProject(projectPath, func(event FileEvent) {
		c.eventChan <- event
	}); err != nil {
		return fmt.Errorf("failed to watch project with fsnotify: %w", err)
	}
	c.logger.Info(fmt.Sprintf("watching project with fsnotify: %s", projectPath))
	return nil
}

// Subscribe registers a declarative expression (or a literal pass-through
// one) against root, dispatching matches to callback.
func (c *Client) Subscribe(
	root string,
	name string,
	config interfaces.SubscriptionConfig,
	callback interfaces.FileChangeCallback,
	exclusions []interfaces.ExclusionExpression,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := &subscription{name: name, root: root, expression: config.Expression, callback: callback}

	if c.useWatchman {
		finalExpr := c.buildWatchmanExpression(config, exclusions)

		clock, err := c.conn.Clock(root)
		if err != nil {
			c.logger.Warn(fmt.Sprintf("failed to get clock: %v", err))
			clock = ""
		}

		query := SubscriptionQuery{
			Expression: finalExpr,
			Fields:     []string{"name", "size", "mtime_ms", "exists", "type", "new"},
			Since:      clock,
			Empty:      true,
		}
		if _, err := c.conn.Subscribe(root, name, query); err != nil {
			return fmt.Errorf("failed to create watchman subscription: %w", err)
		}
	} else if c.fsWatcher != nil {
		patterns := extractPatternsFromExpression(config.Expression)
		c.fsWatcher.SetPatterns(patterns)
	}

	c.subscriptions[name] = sub
	c.logger.Debug(fmt.Sprintf("created subscription: %s", name))
	return nil
}

// buildWatchmanExpression assembles the match/allof/anyof/not tree for a
// subscription: explicit expression wins, otherwise one is synthesized
// from exclusions and the client's configured defaults.
func (c *Client) buildWatchmanExpression(config interfaces.SubscriptionConfig, exclusions []interfaces.ExclusionExpression) Expression {
	if len(config.Expression) > 0 {
		return Expression(config.Expression)
	}

	var exclusionExprs []Expression
	for _, exc := range exclusions {
		for _, pattern := range exc.Patterns {
			if exc.Type == "dir" || exc.Type == "dirname" {
				exclusionExprs = append(exclusionExprs, MatchExpression(fmt.Sprintf("**/%s/**", pattern), true))
			} else {
				exclusionExprs = append(exclusionExprs, MatchExpression(pattern, false))
			}
		}
	}
	if c.config.UseDefaultExclusions {
		for _, dir := range getDefaultExclusions() {
			exclusionExprs = append(exclusionExprs, MatchExpression(fmt.Sprintf("**/%s/**", dir), true))
		}
	}

	if len(exclusionExprs) > 0 {
		return AllOfExpression(
			MatchExpression("**", true),
			NotExpression(AnyOfExpression(exclusionExprs...)),
		)
	}
	return MatchExpression("**", true)
}

func (c *Client) Unsubscribe(subscriptionName string) error {
	c.mu.Lock()
	sub, exists := c.subscriptions[subscriptionName]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("subscription %s not found", subscriptionName)
	}
	delete(c.subscriptions, subscriptionName)
	c.mu.Unlock()

	if c.useWatchman && c.conn != nil {
		return c.conn.Unsubscribe(sub.root, subscriptionName)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	if c.useWatchman {
		return c.conn != nil
	}
	return c.fsWatcher != nil
}

func (c *Client) GetVersion() (string, error) {
	if c.useWatchman && c.conn != nil {
		return c.conn.Version()
	}
	return "fsnotify", nil
}

func (c *Client) receiveWatchmanEvents() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			if c.conn == nil {
				return
			}
			resp, err := c.conn.Receive()
			if err != nil {
				if strings.Contains(err.Error(), "EOF") || strings.Contains(err.Error(), "closed") {
					return
				}
				c.logger.Debug(fmt.Sprintf("error receiving watchman event (will retry): %v", err))
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if resp.Subscription != "" {
				c.handleWatchmanResponse(resp)
			} else if resp.Log != "" {
				c.logger.Debug(fmt.Sprintf("watchman log: %s", resp.Log))
			}
		}
	}
}

func (c *Client) handleWatchmanResponse(resp *WatchmanResponse) {
	c.mu.RLock()
	_, exists := c.subscriptions[resp.Subscription]
	c.mu.RUnlock()
	if !exists {
		return
	}
	for _, file := range resp.Files {
		c.eventChan <- ConvertWatchmanFile(resp.Root, file)
	}
}

// processEvents applies the settling delay: a burst of changes to the
// same path resets its timer, and only the last event in a quiet window
// is dispatched.
func (c *Client) processEvents() {
	pending := make(map[string]*FileEvent)
	timers := make(map[string]*time.Timer)

	for {
		select {
		case <-c.ctx.Done():
			return
		case event := <-c.eventChan:
			if timer, exists := timers[event.Path]; exists {
				timer.Stop()
				delete(timers, event.Path)
			}
			pending[event.Path] = &event

			path := event.Path
			timer := time.AfterFunc(c.settlingDelay, func() {
				c.mu.Lock()
				delete(timers, path)
				pendingEvent, exists := pending[path]
				if exists {
					delete(pending, path)
				}
				c.mu.Unlock()
				if exists {
					c.dispatchEvent(*pendingEvent)
				}
			})
			timers[event.Path] = timer
		}
	}
}

func (c *Client) dispatchEvent(event FileEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, sub := range c.subscriptions {
		if !c.eventMatchesSubscription(event, sub) {
			continue
		}
		change := interfaces.FileChange{
			Name:   event.Path,
			Exists: event.Type != FileDeleted,
			Type:   fileTypeOf(event),
		}
		if sub.callback != nil {
			sub.callback([]interfaces.FileChange{change})
		}
	}
}

func (c *Client) eventMatchesSubscription(event FileEvent, sub *subscription) bool {
	if !strings.HasPrefix(event.Path, sub.root) {
		return false
	}
	if len(sub.expression) > 0 && c.useWatchman {
		return true
	}
	for _, pattern := range extractPatternsFromExpression(sub.expression) {
		if matched, _ := filepath.Match(pattern, filepath.Base(event.Path)); matched {
			return true
		}
		if strings.Contains(pattern, "**") {
			parts := strings.SplitN(pattern, "**", 2)
			prefix := parts[0]
			relPath, _ := filepath.Rel(sub.root, event.Path)
			if strings.HasPrefix(relPath, prefix) {
				suffix := strings.TrimPrefix(parts[len(parts)-1], "/")
				if suffix == "" || strings.HasSuffix(relPath, suffix) {
					return true
				}
			}
		}
	}
	return false
}

func fileTypeOf(event FileEvent) string {
	if event.IsDir {
		return "d"
	}
	return "f"
}

func extractPatternsFromExpression(expr []interface{}) []string {
	if len(expr) == 0 {
		return []string{"**"}
	}
	var patterns []string
	extractPatterns(expr, &patterns)
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	return patterns
}

func extractPatterns(expr interface{}, patterns *[]string) {
	v, ok := expr.([]interface{})
	if !ok || len(v) == 0 {
		return
	}
	cmd, ok := v[0].(string)
	if !ok {
		return
	}
	switch cmd {
	case "match":
		if len(v) > 1 {
			if pattern, ok := v[1].(string); ok {
				*patterns = append(*patterns, pattern)
			}
		}
	case "anyof", "allof":
		for i := 1; i < len(v); i++ {
			extractPatterns(v[i], patterns)
		}
	}
}

func getDefaultExclusions() []string {
	return []string{
		".git", ".svn", ".hg", ".bzr",
		"node_modules", "vendor", ".idea", ".vscode",
		"__pycache__", ".pytest_cache",
		"target", "build", "dist", "out", ".poltergeist",
	}
}

// List returns every currently-watched root.
func (c *Client) List() []string {
	if c.fsWatcher != nil {
		return c.fsWatcher.List()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	paths := make([]string, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		paths = append(paths, sub.root)
	}
	return paths
}

var _ interfaces.WatchmanClient = (*Client)(nil)
