package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/strataconf/strata/pkg/core"
	"github.com/strataconf/strata/pkg/dlogger"
	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
	"github.com/strataconf/strata/pkg/storage/localfs"
	"github.com/strataconf/strata/pkg/workspace"
)

func mkLogger() (*zap.Logger, error) {
	return dlogger.GetLogger(strataFlags.root.logLevel)
}

// mkStores wires the engine backends from the CLI flags: a local
// filesystem store for objects, refs and the journal, plus the workspace.
func mkStores() (*core.Stores, error) {
	if strataFlags.root.store == "" {
		return nil, fmt.Errorf("no store configured: set --store or the store key in strata.yaml")
	}
	logger, err := mkLogger()
	if err != nil {
		return nil, err
	}
	backing, err := localfs.New(afero.NewBasePathFs(afero.NewOsFs(), strataFlags.root.store))
	if err != nil {
		return nil, err
	}
	ws := workspace.New(nil, filepath.Clean(strataFlags.root.workspace))
	return core.NewStores(
		objects.New(backing, objects.Logger(logger)),
		backing,
		ws,
		core.Logger(logger),
	), nil
}

func contextProject() (string, error) {
	if strataFlags.context.project == "" {
		return "", fmt.Errorf("no project in context: set --project or the project key in strata.yaml")
	}
	return strataFlags.context.project, nil
}

// layerFromFlags binds the --layer kind to the context names it requires
func layerFromFlags() (model.Layer, error) {
	project := strataFlags.context.project
	mode := strataFlags.context.mode
	scope := strataFlags.context.scope

	switch strataFlags.layer.kind {
	case "global-base":
		return model.NewGlobalBase(), nil
	case "mode-base":
		return model.NewModeBase(mode), nil
	case "mode-scope":
		return model.NewModeScope(mode, scope), nil
	case "mode-scope-project":
		return model.NewModeScopeProject(mode, scope, project), nil
	case "mode-project":
		return model.NewModeProject(mode, project), nil
	case "scope-base":
		return model.NewScopeBase(scope), nil
	case "project-base":
		return model.NewProjectBase(project), nil
	default:
		return model.Layer{}, fmt.Errorf(
			"unknown layer kind %q: pick one of global-base, mode-base, mode-scope, mode-scope-project, mode-project, scope-base, project-base",
			strataFlags.layer.kind)
	}
}
