// Package model describes the core data model for strata:
// layers and their precedence, ref path layout, staged changes,
// transaction records and workspace metadata.
//
// Serialized descriptors are written as yaml.
package model
