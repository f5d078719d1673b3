package mirror

import (
	"path"

	"tabmirror/internal/catalog"
	"tabmirror/internal/common"
)

// ItemPath maps a remote item to its deterministic mirror path, relative
// to the base directory: sanitized project segments, then the sanitized
// item name with a kind-specific extension. Sibling items of different
// kinds with the same name therefore never collide.
func ItemPath(item catalog.Item) string {
	segments := make([]string, 0, len(item.ProjectPath)+1)
	for _, p := range item.ProjectPath {
		segments = append(segments, common.SanitizeName(p))
	}
	segments = append(segments, common.SanitizeName(item.Name)+item.Kind.Extension())
	return path.Join(segments...)
}

// ProjectPrefix maps a project path to its mirror directory prefix,
// used to scope orphan detection away from skipped subtrees
func ProjectPrefix(projectPath []string) string {
	segments := make([]string, 0, len(projectPath))
	for _, p := range projectPath {
		segments = append(segments, common.SanitizeName(p))
	}
	return path.Join(segments...)
}
