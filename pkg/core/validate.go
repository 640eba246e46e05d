package core

import (
	"context"
	"strings"

	"github.com/strataconf/strata/pkg/core/status"
	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
)

// DriftCause classifies why a workspace detached.
type DriftCause string

const (
	// DriftFileChanged means a materialized file was edited or removed
	// outside the engine
	DriftFileChanged DriftCause = "file changed externally"

	// DriftHistoryPruned means a commit the materialization came from no
	// longer exists in the object store
	DriftHistoryPruned DriftCause = "source history pruned"

	// DriftLayerUnresolved means the active mode or scope no longer
	// resolves to any stored layer
	DriftLayerUnresolved DriftCause = "active layer unresolved"
)

// Drift is one detachment finding.
type Drift struct {
	Cause   DriftCause
	Subject string
	Detail  string
}

// ValidationResult reports workspace attachment. RecoveryHint is set when
// detached.
type ValidationResult struct {
	Attached     bool
	Drifts       []Drift
	RecoveryHint string
}

// Validate checks the workspace against its recorded materialization. A
// workspace with no metadata record has nothing to drift from and counts
// as attached.
func Validate(ctx context.Context, stores *Stores, project, mode, scope string) (*ValidationResult, error) {
	result := &ValidationResult{Attached: true}

	meta, found, err := stores.Workspace().LoadMetadata()
	if err != nil {
		return nil, err
	}
	if !found {
		return result, nil
	}

	for _, f := range meta.Files {
		hash, exists, err := stores.Workspace().HashFile(f.Path)
		if err != nil {
			return nil, err
		}
		switch {
		case !exists:
			result.Drifts = append(result.Drifts, Drift{
				Cause:   DriftFileChanged,
				Subject: f.Path,
				Detail:  "file removed since materialization",
			})
		case hash != f.Hash:
			result.Drifts = append(result.Drifts, Drift{
				Cause:   DriftFileChanged,
				Subject: f.Path,
				Detail:  "content no longer matches the recorded hash",
			})
		}
	}

	for _, src := range meta.Sources {
		key, err := objects.KeyFromString(src.CommitID)
		if err != nil {
			result.Drifts = append(result.Drifts, Drift{
				Cause:   DriftHistoryPruned,
				Subject: src.Layer.String(),
				Detail:  "recorded commit id is unreadable",
			})
			continue
		}
		has, err := stores.Objects().HasObject(ctx, key)
		if err != nil {
			return nil, err
		}
		if !has {
			result.Drifts = append(result.Drifts, Drift{
				Cause:   DriftHistoryPruned,
				Subject: src.Layer.String(),
				Detail:  "commit " + src.CommitID + " no longer exists",
			})
		}
	}

	if err := checkActiveLayers(ctx, stores, mode, scope, result); err != nil {
		return nil, err
	}

	if len(result.Drifts) > 0 {
		result.Attached = false
		result.RecoveryHint = "re-materialize the workspace, or pass the explicit override to proceed anyway"
	}
	return result, nil
}

// checkActiveLayers verifies the mode and scope in context still resolve
// to at least one stored ref each
func checkActiveLayers(ctx context.Context, stores *Stores, mode, scope string, result *ValidationResult) error {
	if mode == "" && scope == "" {
		return nil
	}
	refs, err := stores.Objects().ListRefs(ctx, "")
	if err != nil {
		return err
	}

	if mode != "" && !anyRefUnder(refs, model.GetRefPathPrefixToModes()+mode+"/") {
		result.Drifts = append(result.Drifts, Drift{
			Cause:   DriftLayerUnresolved,
			Subject: "mode " + mode,
			Detail:  "no stored layer resolves for this mode",
		})
	}
	if scope != "" {
		prefix := model.GetRefPathPrefixToScopes() + scope + "/"
		if mode != "" {
			// a mode-bound scope is resolved under its mode
			prefix = model.GetRefPathPrefixToModes() + mode + "/scopes/" + scope + "/"
		}
		if !anyRefUnder(refs, prefix) {
			result.Drifts = append(result.Drifts, Drift{
				Cause:   DriftLayerUnresolved,
				Subject: "scope " + scope,
				Detail:  "no stored layer resolves for this scope",
			})
		}
	}
	return nil
}

func anyRefUnder(refs []string, prefix string) bool {
	for _, ref := range refs {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

// GateDestructive refuses a destructive operation on a detached
// workspace. The force flag skips validation entirely.
func GateDestructive(ctx context.Context, stores *Stores, project, mode, scope string, force bool) error {
	if force {
		return nil
	}
	result, err := Validate(ctx, stores, project, mode, scope)
	if err != nil {
		return err
	}
	if result.Attached {
		return nil
	}
	first := result.Drifts[0]
	return status.ErrDetached.WrapMessage("%s: %s (%s). %s",
		first.Cause, first.Subject, first.Detail, result.RecoveryHint)
}
