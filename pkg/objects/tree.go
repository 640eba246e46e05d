package objects

import (
	"context"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects/status"
)

// PathEntry associates a slash-separated file path with its blob key.
type PathEntry struct {
	Path string
	Key  Key
}

// BuildTree stores one single-level tree object. Entry names must be plain
// path segments; nested directories are expressed by building inner trees
// first and referencing them with EntryTree kind.
func (s *Store) BuildTree(ctx context.Context, entries []model.TreeEntry) (Key, error) {
	desc, err := model.NewTreeDescriptor(entries)
	if err != nil {
		return Key{}, status.ErrCorrupted.Wrap(err)
	}
	data, err := yaml.Marshal(desc)
	if err != nil {
		return Key{}, err
	}
	return s.putObject(ctx, data)
}

// ReadTreeEntries fetches the direct children of one tree object
func (s *Store) ReadTreeEntries(ctx context.Context, key Key) ([]model.TreeEntry, error) {
	data, err := s.getObject(ctx, key)
	if err != nil {
		return nil, err
	}
	var desc model.TreeDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, status.ErrCorrupted.WrapMessage("tree %s: %v", key, err)
	}
	if desc.Kind != model.ObjectKindTree {
		return nil, status.ErrCorrupted.WrapMessage("object %s is not a tree (kind %q)", key, desc.Kind)
	}
	return desc.Entries, nil
}

// ReadTree flattens a tree recursively into (path, blob key) pairs, paths
// in lexicographic order within each directory.
func (s *Store) ReadTree(ctx context.Context, key Key) ([]PathEntry, error) {
	var out []PathEntry
	err := s.walkTree(ctx, key, "", &out)
	return out, err
}

func (s *Store) walkTree(ctx context.Context, key Key, prefix string, out *[]PathEntry) error {
	entries, err := s.ReadTreeEntries(ctx, key)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		childKey, err := KeyFromString(entry.Key)
		if err != nil {
			return status.ErrCorrupted.WrapMessage("tree %s entry %q: %v", key, entry.Name, err)
		}
		pth := entry.Name
		if prefix != "" {
			pth = prefix + "/" + entry.Name
		}
		switch entry.Kind {
		case model.EntryBlob:
			*out = append(*out, PathEntry{Path: pth, Key: childKey})
		case model.EntryTree:
			if err := s.walkTree(ctx, childKey, pth, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildNestedTree assembles a full snapshot tree from flat path entries:
// paths are grouped by leading segment into an arena of subtree maps and
// inner trees are built bottom-up, since tree objects are single-level.
func (s *Store) BuildNestedTree(ctx context.Context, files []PathEntry) (Key, error) {
	type node struct {
		blobs    map[string]Key
		children map[string]*node
	}
	newNode := func() *node {
		return &node{blobs: map[string]Key{}, children: map[string]*node{}}
	}

	root := newNode()
	for _, file := range files {
		segments := strings.Split(file.Path, "/")
		cur := root
		for _, seg := range segments[:len(segments)-1] {
			next, ok := cur.children[seg]
			if !ok {
				next = newNode()
				cur.children[seg] = next
			}
			cur = next
		}
		cur.blobs[segments[len(segments)-1]] = file.Key
	}

	var build func(n *node) (Key, error)
	build = func(n *node) (Key, error) {
		entries := make([]model.TreeEntry, 0, len(n.blobs)+len(n.children))
		for name, key := range n.blobs {
			entries = append(entries, model.TreeEntry{Name: name, Key: key.String(), Kind: model.EntryBlob})
		}
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			subKey, err := build(n.children[name])
			if err != nil {
				return Key{}, err
			}
			entries = append(entries, model.TreeEntry{Name: name, Key: subKey.String(), Kind: model.EntryTree})
		}
		return s.BuildTree(ctx, entries)
	}
	return build(root)
}
