// Package engine provides core interfaces for the build orchestration system.
// Following Go best practices: "Accept interfaces, return structs" and 
// "Don't design with interfaces, discover them."
package engine

import (
	"context"
	"time"

	"github.com/ghostwatch/poltergeist/pkg/logger"
	"github.com/ghostwatch/poltergeist/pkg/types"
)

// Builder represents a target builder interface.
// This interface has multiple implementations: ExecutableBuilder, CMakeBuilder, CustomBuilder, etc.
// KEEP: Multiple implementations justify the abstraction.
type Builder interface {
	Validate() error
	Build(ctx context.Context, changedFiles []string) error
	Stop() error
	GetOutputInfo() string
	Clean() error
	GetTarget() types.Target
	GetLastBuildTime() time.Duration
	GetSuccessRate() float64
}

// BuilderFactory creates builders for targets.
// KEEP: Factory pattern with multiple builder types.
type BuilderFactory interface {
	CreateBuilder(
		target types.Target,
		projectRoot string,
		logger logger.Logger,
	) Builder
}

// Logger represents logging capabilities.
// KEEP: Allows for different logging implementations (structured, file, remote).
type Logger interface {
	Debug(msg string, fields ...logger.Field)
	Info(msg string, fields ...logger.Field)
	Warn(msg string, fields ...logger.Field)
	Error(msg string, fields ...logger.Field)
	InfoContext(ctx context.Context, msg string, fields ...logger.Field)
	ErrorContext(ctx context.Context, msg string, fields ...logger.Field)
}

// WatchmanClient, StateManager, WatchmanConfigManager, ProcessManager,
// PriorityEngine and BuildQueue are injected through pkg/interfaces
// instead of being redeclared here: poltergeist.go depends on
// interfaces.PriorityEngine/interfaces.BuildQueue, backed by the concrete
// pkg/queue.PriorityEngine and pkg/queue.IntelligentBuildQueue.