package builders

import (
	"fmt"

	"github.com/ghostwatch/poltergeist/pkg/interfaces"
	"github.com/ghostwatch/poltergeist/pkg/logger"
	"github.com/ghostwatch/poltergeist/pkg/types"
)

// Factory creates the concrete builder for a target's kind (C9). A target
// type the factory doesn't recognise is a configuration error caught at
// startup, not something to silently degrade to a generic builder.
type Factory struct{}

// NewBuilderFactory creates a new builder factory.
func NewBuilderFactory() *Factory {
	return &Factory{}
}

// CreateBuilder creates the appropriate builder for a target. Panics on an
// unrecognised target type: config validation (A1) should have already
// rejected it, so reaching here means that validation was bypassed.
func (f *Factory) CreateBuilder(
	target types.Target,
	projectRoot string,
	log logger.Logger,
	stateManager interfaces.StateManager,
) interfaces.Builder {
	switch target.GetType() {
	case types.TargetTypeExecutable:
		return NewExecutableBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeAppBundle:
		return NewAppBundleBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeLibrary:
		return NewLibraryBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeFramework:
		return NewFrameworkBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeTest:
		return NewTestBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeDocker:
		return NewDockerBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeCMakeExecutable:
		return NewCMakeExecutableBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeCMakeLibrary:
		return NewCMakeLibraryBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeCMakeCustom:
		return NewCMakeCustomBuilder(target, projectRoot, log, stateManager)

	case types.TargetTypeCustom:
		return NewCustomBuilder(target, projectRoot, log, stateManager)

	default:
		panic(fmt.Sprintf("poltergeist: no builder registered for target type %q (target %q)",
			target.GetType(), target.GetName()))
	}
}

// FrameworkBuilder builds Apple framework targets.
type FrameworkBuilder struct {
	*BaseBuilder
	outputPath string
	platform   types.Platform
}

// NewFrameworkBuilder creates a new framework builder.
func NewFrameworkBuilder(
	target types.Target,
	projectRoot string,
	log logger.Logger,
	stateManager interfaces.StateManager,
) *FrameworkBuilder {
	base := NewBaseBuilder(target, projectRoot, log, stateManager)

	builder := &FrameworkBuilder{BaseBuilder: base}

	if fwTarget, ok := target.(*types.FrameworkTarget); ok {
		builder.outputPath = fwTarget.OutputPath
		builder.platform = fwTarget.Platform
	}

	return builder
}

// CustomBuilder builds user-defined targets driven entirely by their
// configured build command.
type CustomBuilder struct {
	*BaseBuilder
	config map[string]interface{}
}

// NewCustomBuilder creates a new custom builder.
func NewCustomBuilder(
	target types.Target,
	projectRoot string,
	log logger.Logger,
	stateManager interfaces.StateManager,
) *CustomBuilder {
	base := NewBaseBuilder(target, projectRoot, log, stateManager)

	builder := &CustomBuilder{BaseBuilder: base}

	if customTarget, ok := target.(*types.CustomTarget); ok {
		builder.config = customTarget.Config
	}

	return builder
}
