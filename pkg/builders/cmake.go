package builders

import (
	"context"
	"fmt"
	"os"

	"github.com/ghostwatch/poltergeist/pkg/interfaces"
	"github.com/ghostwatch/poltergeist/pkg/logger"
	"github.com/ghostwatch/poltergeist/pkg/types"
)

// CMakeBuilder provides the configure/build plumbing shared by the three
// CMake target kinds.
type CMakeBuilder struct {
	*BaseBuilder
	generator  string
	buildType  types.CMakeBuildType
	cmakeArgs  []string
	targetName string
	parallel   bool
}

// NewCMakeBuilder creates a base CMake builder.
func NewCMakeBuilder(
	target types.Target,
	projectRoot string,
	log logger.Logger,
	stateManager interfaces.StateManager,
) *CMakeBuilder {
	base := NewBaseBuilder(target, projectRoot, log, stateManager)

	return &CMakeBuilder{
		BaseBuilder: base,
		generator:   "Unix Makefiles",
		buildType:   types.CMakeBuildTypeDebug,
		parallel:    true,
	}
}

// configureCMake runs `cmake -S . -B build` with the target's generator,
// build type and extra arguments before the actual build command runs.
func (b *CMakeBuilder) configureCMake() error {
	buildDir := b.resolvePath("build")

	if err := b.ensureDirectory(buildDir); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}

	cmakeCmd := fmt.Sprintf("cmake -S . -B build -G %q -DCMAKE_BUILD_TYPE=%s",
		b.generator, b.buildType)
	for _, arg := range b.cmakeArgs {
		cmakeCmd += " " + arg
	}

	originalCmd := b.Target.GetBuildCommand()
	defer b.setBuildCommand(originalCmd)

	b.setBuildCommand(cmakeCmd)
	return b.BaseBuilder.Build(context.Background(), nil)
}

// setBuildCommand overwrites the target's build command for the duration
// of a CMake configure step, restored by the caller afterward.
func (b *CMakeBuilder) setBuildCommand(cmd string) {
	switch t := b.Target.(type) {
	case *types.CMakeExecutableTarget:
		t.BuildCommand = cmd
	case *types.CMakeLibraryTarget:
		t.BuildCommand = cmd
	case *types.CMakeCustomTarget:
		t.BuildCommand = cmd
	}
}

func (b *CMakeBuilder) ensureDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// CMakeExecutableBuilder builds CMake executable targets.
type CMakeExecutableBuilder struct {
	*CMakeBuilder
	outputPath string
}

// NewCMakeExecutableBuilder creates a new CMake executable builder.
func NewCMakeExecutableBuilder(
	target types.Target,
	projectRoot string,
	log logger.Logger,
	stateManager interfaces.StateManager,
) *CMakeExecutableBuilder {
	base := NewCMakeBuilder(target, projectRoot, log, stateManager)

	builder := &CMakeExecutableBuilder{CMakeBuilder: base}

	if cmakeTarget, ok := target.(*types.CMakeExecutableTarget); ok {
		if cmakeTarget.Generator != "" {
			builder.generator = cmakeTarget.Generator
		}
		if cmakeTarget.BuildType != "" {
			builder.buildType = cmakeTarget.BuildType
		}
		builder.cmakeArgs = cmakeTarget.CMakeArgs
		builder.targetName = cmakeTarget.TargetName
		builder.outputPath = cmakeTarget.OutputPath
		if cmakeTarget.Parallel != nil {
			builder.parallel = *cmakeTarget.Parallel
		}
	}

	return builder
}

// Build configures the CMake project, then builds the executable target.
func (b *CMakeExecutableBuilder) Build(ctx context.Context, changedFiles []string) error {
	if err := b.configureCMake(); err != nil {
		return err
	}
	return b.BaseBuilder.Build(ctx, changedFiles)
}

// CMakeLibraryBuilder builds CMake library targets.
type CMakeLibraryBuilder struct {
	*CMakeBuilder
	libraryType types.LibraryType
	outputPath  string
}

// NewCMakeLibraryBuilder creates a new CMake library builder.
func NewCMakeLibraryBuilder(
	target types.Target,
	projectRoot string,
	log logger.Logger,
	stateManager interfaces.StateManager,
) *CMakeLibraryBuilder {
	base := NewCMakeBuilder(target, projectRoot, log, stateManager)

	builder := &CMakeLibraryBuilder{CMakeBuilder: base}

	if cmakeTarget, ok := target.(*types.CMakeLibraryTarget); ok {
		if cmakeTarget.Generator != "" {
			builder.generator = cmakeTarget.Generator
		}
		if cmakeTarget.BuildType != "" {
			builder.buildType = cmakeTarget.BuildType
		}
		builder.cmakeArgs = cmakeTarget.CMakeArgs
		builder.targetName = cmakeTarget.TargetName
		builder.libraryType = cmakeTarget.LibraryType
		builder.outputPath = cmakeTarget.OutputPath
		if cmakeTarget.Parallel != nil {
			builder.parallel = *cmakeTarget.Parallel
		}
	}

	return builder
}

// Build configures the CMake project, then builds the library target.
func (b *CMakeLibraryBuilder) Build(ctx context.Context, changedFiles []string) error {
	if err := b.configureCMake(); err != nil {
		return err
	}
	return b.BaseBuilder.Build(ctx, changedFiles)
}

// CMakeCustomBuilder builds a custom CMake target (e.g. a named `make`
// target rather than the project default).
type CMakeCustomBuilder struct {
	*CMakeBuilder
}

// NewCMakeCustomBuilder creates a new CMake custom builder.
func NewCMakeCustomBuilder(
	target types.Target,
	projectRoot string,
	log logger.Logger,
	stateManager interfaces.StateManager,
) *CMakeCustomBuilder {
	base := NewCMakeBuilder(target, projectRoot, log, stateManager)

	builder := &CMakeCustomBuilder{CMakeBuilder: base}

	if cmakeTarget, ok := target.(*types.CMakeCustomTarget); ok {
		if cmakeTarget.Generator != "" {
			builder.generator = cmakeTarget.Generator
		}
		if cmakeTarget.BuildType != "" {
			builder.buildType = cmakeTarget.BuildType
		}
		builder.cmakeArgs = cmakeTarget.CMakeArgs
		builder.targetName = cmakeTarget.TargetName
		if cmakeTarget.Parallel != nil {
			builder.parallel = *cmakeTarget.Parallel
		}
	}

	return builder
}

// Build configures the CMake project, then runs the custom target.
func (b *CMakeCustomBuilder) Build(ctx context.Context, changedFiles []string) error {
	if err := b.configureCMake(); err != nil {
		return err
	}
	return b.BaseBuilder.Build(ctx, changedFiles)
}
