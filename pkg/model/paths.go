package model

import (
	"fmt"
	"strings"
)

const (
	// journal entry file (transaction intent log)
	transactionDescriptorExt = ".yaml"

	// workspace-local persisted state
	stagingIndexFile      = "staging.yaml"
	workspaceMetadataFile = "workspace.yaml"
)

// GetRefPathToLayer yields the stable ref path of a versioned layer.
//
// Layout:
//
//	refs/global/base
//	refs/modes/{mode}/base
//	refs/modes/{mode}/scopes/{scope}/base
//	refs/modes/{mode}/scopes/{scope}/projects/{project}
//	refs/modes/{mode}/projects/{project}
//	refs/scopes/{scope}/base
//	refs/projects/{project}/base
func GetRefPathToLayer(l Layer) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	switch l.Kind {
	case GlobalBase:
		return "refs/global/base", nil
	case ModeBase:
		return fmt.Sprint("refs/modes/", l.Mode, "/base"), nil
	case ModeScope:
		return fmt.Sprint("refs/modes/", l.Mode, "/scopes/", l.Scope, "/base"), nil
	case ModeScopeProject:
		return fmt.Sprint("refs/modes/", l.Mode, "/scopes/", l.Scope, "/projects/", l.Project), nil
	case ModeProject:
		return fmt.Sprint("refs/modes/", l.Mode, "/projects/", l.Project), nil
	case ScopeBase:
		return fmt.Sprint("refs/scopes/", l.Scope, "/base"), nil
	case ProjectBase:
		return fmt.Sprint("refs/projects/", l.Project, "/base"), nil
	default:
		return "", fmt.Errorf("layer %s has no ref: only versioned layers are stored", l.Kind)
	}
}

// GetRefPathPrefixToModes is the common prefix of all mode-parameterized refs
func GetRefPathPrefixToModes() string {
	return "refs/modes/"
}

// GetRefPathPrefixToScopes is the common prefix of untethered scope refs
func GetRefPathPrefixToScopes() string {
	return "refs/scopes/"
}

// GetRefPathPrefixToProjects is the common prefix of project base refs
func GetRefPathPrefixToProjects() string {
	return "refs/projects/"
}

// ParseRefPath reconstructs the layer a ref path points at.
func ParseRefPath(refPath string) (Layer, error) {
	cs := strings.Split(refPath, "/")
	bad := func() (Layer, error) {
		return Layer{}, fmt.Errorf("path is invalid: %q is not a layer ref", refPath)
	}
	if len(cs) < 3 || cs[0] != "refs" {
		return bad()
	}
	switch cs[1] {
	case "global":
		if len(cs) == 3 && cs[2] == "base" {
			return NewGlobalBase(), nil
		}
	case "modes":
		switch {
		case len(cs) == 4 && cs[3] == "base":
			return NewModeBase(cs[2]), nil
		case len(cs) == 5 && cs[3] == "projects":
			return NewModeProject(cs[2], cs[4]), nil
		case len(cs) == 6 && cs[3] == "scopes" && cs[5] == "base":
			return NewModeScope(cs[2], cs[4]), nil
		case len(cs) == 7 && cs[3] == "scopes" && cs[5] == "projects":
			return NewModeScopeProject(cs[2], cs[4], cs[6]), nil
		}
	case "scopes":
		if len(cs) == 4 && cs[3] == "base" {
			return NewScopeBase(cs[2]), nil
		}
	case "projects":
		if len(cs) == 4 && cs[3] == "base" {
			return NewProjectBase(cs[2]), nil
		}
	}
	return bad()
}

// GetJournalPathToTransaction yields the journal entry key for an in-flight
// transaction
func GetJournalPathToTransaction(txID string) string {
	return fmt.Sprint("journal/", txID, transactionDescriptorExt)
}

// GetJournalArchivePathToTransaction yields the key a committed transaction
// record is archived under
func GetJournalArchivePathToTransaction(txID string) string {
	return fmt.Sprint("journal/archive/", txID, transactionDescriptorExt)
}

// GetJournalPathPrefix is the key prefix of all live journal entries
func GetJournalPathPrefix() string {
	return "journal/"
}

// IsJournalArchivePath reports whether a journal key refers to an archived
// (already committed) record
func IsJournalArchivePath(key string) bool {
	return strings.HasPrefix(key, "journal/archive/")
}

// GetWorkspacePathToStagingIndex yields the workspace-local key of the
// persisted staging index
func GetWorkspacePathToStagingIndex() string {
	return stagingIndexFile
}

// GetWorkspacePathToMetadata yields the workspace-local key of the
// materialization metadata record
func GetWorkspacePathToMetadata() string {
	return workspaceMetadataFile
}
