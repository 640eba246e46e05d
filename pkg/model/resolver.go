package model

// ActiveLayers computes the ordered set of versioned layers that apply to a
// (project, mode, scope) context, ascending precedence.
//
// GlobalBase and ProjectBase are always active. A set mode adds ModeBase and
// ModeProject. A set scope adds either the mode-bound pair (ModeScope and
// ModeScopeProject) when a mode is active, or ScopeBase when none is: a
// mode-bound scope strictly supersedes the untethered scope of the same
// name, so both never appear together.
func ActiveLayers(project, mode, scope string) ([]Layer, error) {
	if err := ValidateName(project); err != nil {
		return nil, err
	}
	if mode != "" {
		if err := ValidateName(mode); err != nil {
			return nil, err
		}
	}
	if scope != "" {
		if err := ValidateName(scope); err != nil {
			return nil, err
		}
	}

	layers := []Layer{NewGlobalBase()}
	if mode != "" {
		layers = append(layers, NewModeBase(mode))
		if scope != "" {
			layers = append(layers,
				NewModeScope(mode, scope),
				NewModeScopeProject(mode, scope, project),
			)
		}
		layers = append(layers, NewModeProject(mode, project))
	} else if scope != "" {
		layers = append(layers, NewScopeBase(scope))
	}
	layers = append(layers, NewProjectBase(project))
	return layers, nil
}
