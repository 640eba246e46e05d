package model

import (
	"fmt"
	"regexp"
)

// LayerKind enumerates the 9 precedence levels of the configuration
// hierarchy, lowest first. The numeric value is the precedence class.
type LayerKind uint8

const (
	// GlobalBase applies everywhere (lowest precedence)
	GlobalBase LayerKind = iota + 1

	// ModeBase applies whenever its mode is active
	ModeBase

	// ModeScope applies when both its mode and scope are active
	ModeScope

	// ModeScopeProject narrows ModeScope to one project
	ModeScopeProject

	// ModeProject narrows ModeBase to one project
	ModeProject

	// ScopeBase applies when its scope is active without any mode
	ScopeBase

	// ProjectBase applies to one project regardless of mode or scope
	ProjectBase

	// UserLocal is the machine-only overlay, sourced from the local
	// filesystem and never stored
	UserLocal

	// WorkspaceActive is the derived output of a merge (highest precedence),
	// never a commit source
	WorkspaceActive
)

func (k LayerKind) String() string {
	switch k {
	case GlobalBase:
		return "global-base"
	case ModeBase:
		return "mode-base"
	case ModeScope:
		return "mode-scope"
	case ModeScopeProject:
		return "mode-scope-project"
	case ModeProject:
		return "mode-project"
	case ScopeBase:
		return "scope-base"
	case ProjectBase:
		return "project-base"
	case UserLocal:
		return "user-local"
	case WorkspaceActive:
		return "workspace-active"
	default:
		return fmt.Sprintf("layer-kind(%d)", k)
	}
}

// Layer identifies one precedence level, bound to the mode, scope and
// project names its kind requires.
type Layer struct {
	Kind    LayerKind `json:"kind" yaml:"kind"`
	Mode    string    `json:"mode,omitempty" yaml:"mode,omitempty"`
	Scope   string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	Project string    `json:"project,omitempty" yaml:"project,omitempty"`
	_       struct{}
}

// NewGlobalBase returns the global base layer
func NewGlobalBase() Layer {
	return Layer{Kind: GlobalBase}
}

// NewModeBase returns the base layer of a mode
func NewModeBase(mode string) Layer {
	return Layer{Kind: ModeBase, Mode: mode}
}

// NewModeScope returns the layer of a scope bound to a mode
func NewModeScope(mode, scope string) Layer {
	return Layer{Kind: ModeScope, Mode: mode, Scope: scope}
}

// NewModeScopeProject returns a mode-bound scope layer narrowed to a project
func NewModeScopeProject(mode, scope, project string) Layer {
	return Layer{Kind: ModeScopeProject, Mode: mode, Scope: scope, Project: project}
}

// NewModeProject returns a mode layer narrowed to a project
func NewModeProject(mode, project string) Layer {
	return Layer{Kind: ModeProject, Mode: mode, Project: project}
}

// NewScopeBase returns the layer of a scope untethered to any mode
func NewScopeBase(scope string) Layer {
	return Layer{Kind: ScopeBase, Scope: scope}
}

// NewProjectBase returns the base layer of a project
func NewProjectBase(project string) Layer {
	return Layer{Kind: ProjectBase, Project: project}
}

// NewUserLocal returns the machine-only overlay layer
func NewUserLocal() Layer {
	return Layer{Kind: UserLocal}
}

// NewWorkspaceActive returns the derived workspace layer
func NewWorkspaceActive() Layer {
	return Layer{Kind: WorkspaceActive}
}

// Versioned reports whether this layer has a history in the object store.
// UserLocal is filesystem-sourced and WorkspaceActive is derived; neither
// ever appears in a merge or commit.
func (l Layer) Versioned() bool {
	return l.Kind >= GlobalBase && l.Kind <= ProjectBase
}

func (l Layer) String() string {
	s := string(l.Kind.String())
	if l.Mode != "" {
		s += fmt.Sprintf(" mode=%s", l.Mode)
	}
	if l.Scope != "" {
		s += fmt.Sprintf(" scope=%s", l.Scope)
	}
	if l.Project != "" {
		s += fmt.Sprintf(" project=%s", l.Project)
	}
	return s
}

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]*$`)

// ValidateName checks a mode, scope or project name: it must start with an
// alphanumeric and may contain alphanumerics, dot, underscore and hyphen.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("name %q contains invalid characters", name)
	}
	return nil
}

// Validate checks that the layer carries exactly the parameters its kind
// requires and that all names are well formed.
func (l Layer) Validate() error {
	var needMode, needScope, needProject bool
	switch l.Kind {
	case GlobalBase, UserLocal, WorkspaceActive:
	case ModeBase:
		needMode = true
	case ModeScope:
		needMode, needScope = true, true
	case ModeScopeProject:
		needMode, needScope, needProject = true, true, true
	case ModeProject:
		needMode, needProject = true, true
	case ScopeBase:
		needScope = true
	case ProjectBase:
		needProject = true
	default:
		return fmt.Errorf("unknown layer kind %d", l.Kind)
	}

	check := func(want bool, got, what string) error {
		if want && got == "" {
			return fmt.Errorf("%s layer requires a %s name", l.Kind, what)
		}
		if !want && got != "" {
			return fmt.Errorf("%s layer does not take a %s name", l.Kind, what)
		}
		if want {
			return ValidateName(got)
		}
		return nil
	}
	if err := check(needMode, l.Mode, "mode"); err != nil {
		return err
	}
	if err := check(needScope, l.Scope, "scope"); err != nil {
		return err
	}
	return check(needProject, l.Project, "project")
}
