// Package engine provides the core build orchestration engine
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghostwatch/poltergeist/pkg/config"
	"github.com/ghostwatch/poltergeist/pkg/interfaces"
	"github.com/ghostwatch/poltergeist/pkg/logger"
	"github.com/ghostwatch/poltergeist/pkg/state"
	"github.com/ghostwatch/poltergeist/pkg/types"
)

// RunnerState is a target runner's position in the five-state build
// lifecycle: idle -> debouncing -> settling -> building -> cooling -> idle.
// Debouncing resets on every change; settling is a distinct quiescence
// window only entered once the debounce deadline is reached, and is
// itself reset by changes arriving while it's running.
type RunnerState string

const (
	RunnerIdle       RunnerState = "idle"
	RunnerDebouncing RunnerState = "debouncing"
	RunnerSettling   RunnerState = "settling"
	RunnerBuilding   RunnerState = "building"
	RunnerCooling    RunnerState = "cooling"
)

// cooldownPeriod keeps a target in RunnerCooling briefly after a build so
// a burst of editor-save events right after a build doesn't immediately
// re-trigger one.
const cooldownPeriod = 500 * time.Millisecond

// TargetState tracks the state of a single target
type TargetState struct {
	Target        types.Target
	Builder       interfaces.Builder
	Watching      bool
	LastBuild     types.BuildStatus
	RunState      RunnerState
	PendingFiles  map[string]bool
	DebounceTimer *time.Timer
	SettleTimer   *time.Timer
	mu            sync.Mutex
}

// TargetModification pairs a target's old and new definitions across a
// config reload.
type TargetModification struct {
	Name      string
	OldTarget types.Target
	NewTarget types.Target
}

// ConfigChanges is the diff between a config before and after a reload
// (C6), computed by diffConfigs and applied by applyConfigChanges.
type ConfigChanges struct {
	TargetsAdded           []types.Target
	TargetsRemoved         []string
	TargetsModified        []TargetModification
	WatchmanChanged        bool
	NotificationsChanged   bool
	BuildSchedulingChanged bool
}

// Poltergeist is the main build orchestration engine
type Poltergeist struct {
	config                *types.PoltergeistConfig
	projectRoot           string
	configPath            string
	logger                logger.Logger
	stateManager          interfaces.StateManager
	processManager        interfaces.ProcessManager
	watchman              interfaces.WatchmanClient
	notifier              interfaces.BuildNotifier
	builderFactory        interfaces.BuilderFactory
	watchmanConfigManager interfaces.WatchmanConfigManager
	buildQueue            interfaces.BuildQueue
	priorityEngine        interfaces.PriorityEngine
	
	targetStates          map[string]*TargetState
	buildSchedulingConfig *types.BuildSchedulingConfig
	
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
}

// New creates a new Poltergeist instance
func New(
	config *types.PoltergeistConfig,
	projectRoot string,
	log logger.Logger,
	deps interfaces.PoltergeistDependencies,
	configPath string,
) *Poltergeist {
	ctx, cancel := context.WithCancel(context.Background())
	
	// Ensure project root is absolute
	absProjectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		log.Error(fmt.Sprintf("Failed to get absolute path for project root: %v", err))
		absProjectRoot = projectRoot // Fall back to provided path
	} else {
		projectRoot = absProjectRoot
	}
	
	// Initialize build scheduling config with defaults
	buildSchedulingConfig := &types.BuildSchedulingConfig{
		Parallelization: 2,
		Prioritization: types.BuildPrioritization{
			Enabled:                true,
			FocusDetectionWindow:   300000,  // 5 minutes
			PriorityDecayTime:      1800000, // 30 minutes
			BuildTimeoutMultiplier: 2.0,
		},
	}
	
	if config.BuildScheduling != nil {
		buildSchedulingConfig = config.BuildScheduling
	}
	
	// Validate required dependencies
	if deps.StateManager == nil {
		panic("StateManager dependency is required")
	}
	if deps.BuilderFactory == nil {
		panic("BuilderFactory dependency is required")
	}
	if deps.WatchmanClient == nil {
		panic("WatchmanClient dependency is required")
	}
	if deps.WatchmanConfigManager == nil {
		panic("WatchmanConfigManager dependency is required")
	}
	
	p := &Poltergeist{
		config:                config,
		projectRoot:           projectRoot,
		configPath:            configPath,
		logger:                log,
		stateManager:          deps.StateManager,
		builderFactory:        deps.BuilderFactory,
		notifier:              deps.Notifier,
		watchman:              deps.WatchmanClient,
		watchmanConfigManager: deps.WatchmanConfigManager,
		processManager:        deps.ProcessManager,
		buildQueue:            deps.BuildQueue,
		priorityEngine:        deps.PriorityEngine,
		targetStates:          make(map[string]*TargetState),
		buildSchedulingConfig: buildSchedulingConfig,
		ctx:                   ctx,
		cancel:                cancel,
	}
	
	return p
}

// StartWithContext begins watching and building targets with the given context.
// This follows Go best practices by accepting context from the caller.
func (p *Poltergeist) StartWithContext(ctx context.Context, targetName string) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("Poltergeist is already running")
	}
	p.isRunning = true
	
	// Replace internal context with the provided one
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()
	
	return p.start(targetName)
}

// Start begins watching and building targets (deprecated - use StartWithContext)
func (p *Poltergeist) Start(targetName string) error {
	return p.StartWithContext(context.Background(), targetName)
}

// start is the internal implementation
func (p *Poltergeist) start(targetName string) error {
	
	p.logger.Info("Starting Poltergeist...")
	
	// Start heartbeat
	p.stateManager.StartHeartbeat(p.ctx)
	
	// Setup Watchman configuration
	if err := p.setupWatchmanConfig(); err != nil {
		return fmt.Errorf("failed to setup watchman config: %w", err)
	}
	
	// Initialize notifier if enabled
	if p.config.Notifications != nil && p.config.Notifications.Enabled != nil && *p.config.Notifications.Enabled {
		// Notifier should be initialized
	}
	
	// Initialize build queue
	if p.buildQueue != nil {
		p.buildQueue.Start(p.ctx)
	}
	
	// Determine targets to watch
	targetsToWatch := p.getTargetsToWatch(targetName)
	if len(targetsToWatch) == 0 {
		return fmt.Errorf("no targets to watch")
	}
	
	p.logger.Info(fmt.Sprintf("Building %d enabled target(s)", len(targetsToWatch)))
	
	// Initialize target states
	for _, target := range targetsToWatch {
		if err := p.addTarget(target); err != nil {
			return err
		}
	}
	
	// Connect to Watchman
	if err := p.watchman.Connect(p.ctx); err != nil {
		return fmt.Errorf("failed to connect to watchman: %w", err)
	}
	
	// Watch the project
	if err := p.watchman.WatchProject(p.projectRoot); err != nil {
		return fmt.Errorf("failed to watch project: %w", err)
	}
	
	// Subscribe to file changes
	if err := p.subscribeToChanges(); err != nil {
		return fmt.Errorf("failed to subscribe to changes: %w", err)
	}
	
	// Perform initial builds
	if err := p.performInitialBuilds(); err != nil {
		p.logger.Warn("Initial builds encountered errors", logger.WithField("error", err))
	}
	
	p.logger.Info("Poltergeist is now watching for changes...")
	
	// Register shutdown handlers
	if p.processManager != nil {
		p.processManager.RegisterShutdownHandler(func() {
			p.Stop()
			p.Cleanup()
		})
		p.processManager.Start(p.ctx)
	}
	
	return nil
}

// StopWithContext stops the Poltergeist engine with the given context for timeout control.
// This follows Go best practices for graceful shutdown.
func (p *Poltergeist) StopWithContext(ctx context.Context) {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()
	
	p.logger.Info("Stopping Poltergeist...")
	
	// Cancel internal context to signal shutdown
	p.cancel()
	
	// Create a channel to signal completion
	done := make(chan struct{})
	
	go func() {
		// Stop build queue
		if p.buildQueue != nil {
			p.buildQueue.Stop()
		}
		
		// Stop heartbeat
		p.stateManager.StopHeartbeat()
		
		// Disconnect from Watchman
		if p.watchman != nil && p.watchman.IsConnected() {
			if err := p.watchman.Disconnect(); err != nil {
				p.logger.Warn("Failed to disconnect from watchman", logger.WithField("error", err))
			}
		}
		
		// Wait for all goroutines
		p.wg.Wait()
		
		close(done)
	}()
	
	// Wait for shutdown or context timeout
	select {
	case <-done:
		p.logger.Info("Poltergeist stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("Poltergeist shutdown timed out", logger.WithField("error", ctx.Err()))
	}
}

// Stop stops the Poltergeist engine (deprecated - use StopWithContext)
func (p *Poltergeist) Stop() {
	// Use a 30-second timeout for backward compatibility
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.StopWithContext(ctx)
}

// Cleanup performs cleanup operations
func (p *Poltergeist) Cleanup() error {
	return p.stateManager.Cleanup()
}

// IsRunning reports whether the engine is currently watching/building.
// Used by the daemon supervisor (C7) to answer status queries in-process.
func (p *Poltergeist) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

// Private methods

func (p *Poltergeist) getTargetsToWatch(targetName string) []types.Target {
	var targets []types.Target
	
	if targetName != "" {
		// Find specific target
		for _, rawTarget := range p.config.Targets {
			target, err := types.ParseTarget(rawTarget)
			if err != nil {
				p.logger.Warn("Failed to parse target", logger.WithField("error", err))
				continue
			}
			
			if target.GetName() == targetName {
				if target.IsEnabled() {
					targets = append(targets, target)
				}
				break
			}
		}
	} else {
		// Get all enabled targets
		for _, rawTarget := range p.config.Targets {
			target, err := types.ParseTarget(rawTarget)
			if err != nil {
				p.logger.Warn("Failed to parse target", logger.WithField("error", err))
				continue
			}
			
			if target.IsEnabled() {
				targets = append(targets, target)
			}
		}
	}
	
	return targets
}

func (p *Poltergeist) setupWatchmanConfig() error {
	p.logger.Info("Setting up Watchman configuration...")
	
	if err := p.watchmanConfigManager.EnsureConfigUpToDate(p.config); err != nil {
		return err
	}
	
	// Suggest optimizations
	suggestions, err := p.watchmanConfigManager.SuggestOptimizations()
	if err == nil && len(suggestions) > 0 {
		p.logger.Info("Optimization suggestions:")
		for _, s := range suggestions {
			p.logger.Info(fmt.Sprintf("  - %s", s))
		}
	}
	
	return nil
}

func (p *Poltergeist) subscribeToChanges() error {
	// Group targets by watch paths
	pathToTargets := make(map[string][]string)
	
	p.mu.RLock()
	for name, state := range p.targetStates {
		for _, pattern := range state.Target.GetWatchPaths() {
			pathToTargets[pattern] = append(pathToTargets[pattern], name)
		}
	}
	p.mu.RUnlock()
	
	// Create subscriptions
	exclusions := p.watchmanConfigManager.CreateExclusionExpressions(p.config)
	
	for pattern, targetNames := range pathToTargets {
		// Normalize and validate pattern
		normalizedPattern := p.watchmanConfigManager.NormalizeWatchPattern(pattern)
		if err := p.watchmanConfigManager.ValidateWatchPattern(normalizedPattern); err != nil {
			return fmt.Errorf("invalid watch pattern %s: %w", pattern, err)
		}
		
		subscriptionName := fmt.Sprintf("poltergeist_%s", normalizedPattern)
		
		// Create subscription
		err := p.watchman.Subscribe(
			p.projectRoot,
			subscriptionName,
			interfaces.SubscriptionConfig{
				Expression: []interface{}{"match", normalizedPattern, "wholename"},
				Fields:     []string{"name", "exists", "type"},
			},
			func(files []interfaces.FileChange) {
				p.handleFileChanges(files, targetNames)
			},
			exclusions,
		)
		
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
		
		p.logger.Info(fmt.Sprintf("Watching %d target(s): %s", len(targetNames), normalizedPattern))
	}
	
	// Subscribe to config file changes
	if p.configPath != "" {
		configName := filepath.Base(p.configPath)
		err := p.watchman.Subscribe(
			p.projectRoot,
			"poltergeist_config",
			interfaces.SubscriptionConfig{
				Expression: []interface{}{"match", configName, "wholename"},
				Fields:     []string{"name", "exists", "type"},
			},
			p.handleConfigChange,
			nil,
		)
		
		if err != nil {
			p.logger.Warn("Failed to watch config file", logger.WithField("error", err))
		} else {
			p.logger.Info("Watching configuration file for changes")
		}
	}
	
	return nil
}

func (p *Poltergeist) handleFileChanges(files []interfaces.FileChange, targetNames []string) {
	// Pre-allocate with expected capacity for better performance
	changedFiles := make([]string, 0, len(files))
	for _, f := range files {
		if f.Exists {
			changedFiles = append(changedFiles, f.Name)
		}
	}
	
	if len(changedFiles) == 0 {
		return
	}
	
	p.logger.Debug(fmt.Sprintf("Files changed: %v", changedFiles))

	// Every change, whether or not the priority queue is enabled, first
	// passes through the target runner's own debounce/settle state machine
	// (C5); only once a target settles does enterBuilding decide whether to
	// execute directly or hand off to the priority queue (C4).
	for _, targetName := range targetNames {
		p.mu.RLock()
		targetState, ok := p.targetStates[targetName]
		p.mu.RUnlock()

		if !ok {
			continue
		}

		targetState.mu.Lock()
		for _, file := range changedFiles {
			targetState.PendingFiles[file] = true
		}
		p.recordChangeLocked(targetState, targetName)
		targetState.mu.Unlock()
	}
}

// recordChangeLocked advances a target's runner state machine in response
// to a file change. Caller must hold targetState.mu.
func (p *Poltergeist) recordChangeLocked(targetState *TargetState, targetName string) {
	switch targetState.RunState {
	case RunnerBuilding, RunnerCooling:
		// A change during a build (or its cooldown) is captured in
		// PendingFiles and will be picked up by the next debounce cycle
		// once the target returns to idle.
		return

	case RunnerSettling:
		// New activity during the settle window resets it.
		if targetState.SettleTimer != nil {
			targetState.SettleTimer.Stop()
		}
		targetState.SettleTimer = time.AfterFunc(
			time.Duration(targetState.Target.GetSettlingDelay())*time.Millisecond,
			func() { p.enterBuilding(targetName) },
		)
		return

	default: // RunnerIdle or RunnerDebouncing: (re)start the debounce timer
		targetState.RunState = RunnerDebouncing
		if targetState.DebounceTimer != nil {
			targetState.DebounceTimer.Stop()
		}
		targetState.DebounceTimer = time.AfterFunc(
			time.Duration(targetState.Target.GetDebounceInterval())*time.Millisecond,
			func() { p.enterSettling(targetName) },
		)
	}
}

// enterSettling transitions a target from debouncing to settling once its
// debounce deadline is reached undisturbed.
func (p *Poltergeist) enterSettling(targetName string) {
	p.mu.RLock()
	targetState, ok := p.targetStates[targetName]
	p.mu.RUnlock()
	if !ok {
		return
	}

	targetState.mu.Lock()
	targetState.RunState = RunnerSettling
	targetState.SettleTimer = time.AfterFunc(
		time.Duration(targetState.Target.GetSettlingDelay())*time.Millisecond,
		func() { p.enterBuilding(targetName) },
	)
	targetState.mu.Unlock()
}

// usesBuildQueue reports whether settled changes should be dispatched
// through the priority queue (C4) instead of built directly.
func (p *Poltergeist) usesBuildQueue() bool {
	return p.buildQueue != nil && p.buildSchedulingConfig.Prioritization.Enabled
}

// enterBuilding transitions a target from settling into a build, then into
// a brief cooldown before returning to idle. If new changes arrived while
// building, it re-enters debouncing once the cooldown ends instead of
// staying idle.
func (p *Poltergeist) enterBuilding(targetName string) {
	p.mu.RLock()
	targetState, ok := p.targetStates[targetName]
	p.mu.RUnlock()
	if !ok {
		return
	}

	if p.usesBuildQueue() {
		// Hand the settled change set to the priority queue (C4), which
		// owns concurrency gating and ordering from here. The queue's own
		// pending/active tracking (not RunState) is what coalesces any
		// further changes that arrive before this request is dequeued, so
		// the runner returns to idle immediately rather than staying
		// "building" for the queue's processing lifetime.
		targetState.mu.Lock()
		files := make([]string, 0, len(targetState.PendingFiles))
		for file := range targetState.PendingFiles {
			files = append(files, file)
		}
		targetState.PendingFiles = make(map[string]bool)
		targetState.RunState = RunnerIdle
		targetState.mu.Unlock()

		p.buildQueue.OnFileChanged(files, []types.Target{targetState.Target})
		return
	}

	targetState.mu.Lock()
	targetState.RunState = RunnerBuilding
	targetState.mu.Unlock()

	_ = p.buildTarget(targetName)

	targetState.mu.Lock()
	targetState.RunState = RunnerCooling
	targetState.mu.Unlock()

	time.AfterFunc(cooldownPeriod, func() {
		targetState.mu.Lock()
		defer targetState.mu.Unlock()
		if targetState.RunState != RunnerCooling {
			return
		}
		if len(targetState.PendingFiles) > 0 {
			targetState.RunState = RunnerIdle
			p.recordChangeLocked(targetState, targetName)
			return
		}
		targetState.RunState = RunnerIdle
	})
}

func (p *Poltergeist) handleConfigChange(files []interfaces.FileChange) {
	if len(files) == 0 {
		return
	}

	p.logger.Info("Configuration file changed, reloading...")

	if p.configPath == "" {
		return
	}

	newConfig, err := config.NewManager().LoadConfig(p.configPath)
	if err != nil {
		p.logger.Error("Failed to reload configuration, keeping previous config",
			logger.WithField("error", err))
		return
	}

	p.mu.Lock()
	oldConfig := p.config
	changes := diffConfigs(oldConfig, newConfig)
	p.config = newConfig
	if newConfig.BuildScheduling != nil {
		p.buildSchedulingConfig = newConfig.BuildScheduling
	}
	p.mu.Unlock()

	p.applyConfigChanges(changes)
}

// diffConfigs compares two configs and reports what changed. Targets are
// compared by name; a target present in both but with a different
// serialized form counts as modified.
func diffConfigs(oldConfig, newConfig *types.PoltergeistConfig) ConfigChanges {
	var changes ConfigChanges

	oldTargets := make(map[string]types.Target)
	for _, raw := range oldConfig.Targets {
		if t, err := types.ParseTarget(raw); err == nil {
			oldTargets[t.GetName()] = t
		}
	}

	newTargets := make(map[string]types.Target)
	for _, raw := range newConfig.Targets {
		if t, err := types.ParseTarget(raw); err == nil {
			newTargets[t.GetName()] = t
		}
	}

	for name, newTarget := range newTargets {
		oldTarget, existed := oldTargets[name]
		if !existed {
			changes.TargetsAdded = append(changes.TargetsAdded, newTarget)
			continue
		}
		if !targetsEqual(oldTarget, newTarget) {
			changes.TargetsModified = append(changes.TargetsModified, TargetModification{
				Name:      name,
				OldTarget: oldTarget,
				NewTarget: newTarget,
			})
		}
	}

	for name := range oldTargets {
		if _, stillPresent := newTargets[name]; !stillPresent {
			changes.TargetsRemoved = append(changes.TargetsRemoved, name)
		}
	}

	changes.WatchmanChanged = !jsonEqual(oldConfig.Watchman, newConfig.Watchman)
	changes.NotificationsChanged = !jsonEqual(oldConfig.Notifications, newConfig.Notifications)
	changes.BuildSchedulingChanged = !jsonEqual(oldConfig.BuildScheduling, newConfig.BuildScheduling)

	return changes
}

func targetsEqual(a, b types.Target) bool {
	return jsonEqual(a, b)
}

func jsonEqual(a, b interface{}) bool {
	aBytes, aErr := json.Marshal(a)
	bBytes, bErr := json.Marshal(b)
	if aErr != nil || bErr != nil {
		return false
	}
	return string(aBytes) == string(bBytes)
}

// applyConfigChanges mutates the live runner set to reflect a config
// reload instead of requiring a daemon restart.
func (p *Poltergeist) applyConfigChanges(changes ConfigChanges) {
	for _, name := range changes.TargetsRemoved {
		p.removeTarget(name)
	}

	for _, mod := range changes.TargetsModified {
		p.removeTarget(mod.Name)
		if err := p.addTarget(mod.NewTarget); err != nil {
			p.logger.Error("Failed to apply modified target",
				logger.WithField("target", mod.Name), logger.WithField("error", err))
		}
	}

	for _, target := range changes.TargetsAdded {
		if err := p.addTarget(target); err != nil {
			p.logger.Error("Failed to add new target",
				logger.WithField("target", target.GetName()), logger.WithField("error", err))
		}
	}

	if changes.WatchmanChanged {
		if err := p.setupWatchmanConfig(); err != nil {
			p.logger.Warn("Failed to reapply watchman config", logger.WithField("error", err))
		}
	}

	if len(changes.TargetsAdded) > 0 || len(changes.TargetsRemoved) > 0 || len(changes.TargetsModified) > 0 || changes.WatchmanChanged {
		if err := p.subscribeToChanges(); err != nil {
			p.logger.Warn("Failed to re-subscribe after config reload", logger.WithField("error", err))
		}
	}

	p.logger.Info("Configuration reload applied",
		logger.WithField("added", len(changes.TargetsAdded)),
		logger.WithField("removed", len(changes.TargetsRemoved)),
		logger.WithField("modified", len(changes.TargetsModified)))
}

// removeTarget tears down a target runner no longer present in config.
func (p *Poltergeist) removeTarget(name string) {
	p.mu.Lock()
	targetState, ok := p.targetStates[name]
	if ok {
		delete(p.targetStates, name)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	targetState.mu.Lock()
	if targetState.DebounceTimer != nil {
		targetState.DebounceTimer.Stop()
	}
	if targetState.SettleTimer != nil {
		targetState.SettleTimer.Stop()
	}
	targetState.mu.Unlock()

	if err := targetState.Builder.Stop(); err != nil {
		p.logger.Warn("Failed to stop builder for removed target",
			logger.WithField("target", name), logger.WithField("error", err))
	}
	if err := p.stateManager.RemoveState(name); err != nil {
		p.logger.Warn("Failed to remove state for removed target",
			logger.WithField("target", name), logger.WithField("error", err))
	}
}

// addTarget brings a new (or modified) target under management: builds a
// builder, validates it, registers it with the build queue, and
// initializes its on-disk state.
func (p *Poltergeist) addTarget(target types.Target) error {
	if !target.IsEnabled() {
		return nil
	}

	builder := p.builderFactory.CreateBuilder(target, p.projectRoot, p.logger, p.stateManager)
	if err := builder.Validate(); err != nil {
		return fmt.Errorf("target validation failed for %s: %w", target.GetName(), err)
	}

	targetState := &TargetState{
		Target:       target,
		Builder:      builder,
		RunState:     RunnerIdle,
		PendingFiles: make(map[string]bool),
	}

	p.mu.Lock()
	p.targetStates[target.GetName()] = targetState
	p.mu.Unlock()

	if p.buildQueue != nil {
		p.buildQueue.RegisterTarget(target, builder)
	}

	if _, err := p.stateManager.Initialize(target); err != nil {
		p.logger.Warn(fmt.Sprintf("Failed to initialize state for %s", target.GetName()),
			logger.WithField("error", err))
	}

	return nil
}

func (p *Poltergeist) performInitialBuilds() error {
	// Use intelligent build queue if available
	if p.usesBuildQueue() {
		// Pre-allocate with known capacity
		p.mu.RLock()
		targets := make([]types.Target, 0, len(p.targetStates))
		for _, state := range p.targetStates {
			targets = append(targets, state.Target)
		}
		p.mu.RUnlock()
		
		p.buildQueue.OnFileChanged([]string{"initial build"}, targets)
		return nil
	}
	
	// Use SafeGroup for concurrent builds with proper error handling and panic recovery
	g, ctx := NewSafeGroup(p.ctx, p.logger)
	
	// Set reasonable concurrency limit to prevent resource exhaustion
	parallelism := p.buildSchedulingConfig.Parallelization
	if parallelism <= 0 {
		parallelism = 2 // Default safe parallelism
	}
	g.SetLimit(parallelism)
	
	p.mu.RLock()
	for name := range p.targetStates {
		name := name // Capture loop variable (Go best practice)
		g.Go(func() error {
			// Check context cancellation before building
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			
			if err := p.buildTarget(name); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	p.mu.RUnlock()
	
	// Wait returns the first error encountered, cancelling all other operations
	if err := g.Wait(); err != nil {
		return fmt.Errorf("initial builds failed: %w", err)
	}
	
	return nil
}

func (p *Poltergeist) buildTarget(targetName string) error {
	p.mu.RLock()
	targetState, ok := p.targetStates[targetName]
	p.mu.RUnlock()

	if !ok {
		return fmt.Errorf("target not found: %s", targetName)
	}

	targetState.mu.Lock()
	changedFiles := make([]string, 0, len(targetState.PendingFiles))
	for file := range targetState.PendingFiles {
		changedFiles = append(changedFiles, file)
	}
	targetState.PendingFiles = make(map[string]bool)
	targetState.mu.Unlock()

	// Update build status
	if err := p.stateManager.UpdateBuildStatus(targetName, state.StatusBuilding, 0); err != nil {
		p.logger.Warn("Failed to update build status", logger.WithField("error", err))
	}

	// Notify build start
	if p.notifier != nil {
		p.notifier.NotifyBuildStart(targetName)
	}

	// Perform build
	startTime := time.Now()
	err := targetState.Builder.Build(p.ctx, changedFiles)
	duration := time.Since(startTime)

	// Update build status and notify
	if err != nil {
		p.stateManager.UpdateBuildStatus(targetName, state.StatusFailure, duration)
		if updateErr := p.stateManager.UpdateBuildError(targetName, state.BuildError{
			Command:   targetState.Target.GetBuildCommand(),
			Timestamp: time.Now(),
		}, err.Error()); updateErr != nil {
			p.logger.Warn("Failed to record build error", logger.WithField("error", updateErr))
		}
		if p.notifier != nil {
			p.notifier.NotifyBuildFailure(targetName, err)
		}
		if p.priorityEngine != nil {
			p.priorityEngine.UpdateTargetMetrics(targetName, duration, false)
		}
		return err
	}

	p.stateManager.UpdateBuildStatus(targetName, state.StatusSuccess, duration)
	if p.notifier != nil {
		p.notifier.NotifyBuildSuccess(targetName, duration)
	}
	
	// Update priority engine metrics
	if p.priorityEngine != nil {
		p.priorityEngine.UpdateTargetMetrics(targetName, duration, true)
	}
	
	return nil
}