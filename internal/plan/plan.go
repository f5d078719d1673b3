package plan

import (
	"os"
	"path/filepath"
	"strings"

	"tabmirror/internal/catalog"
	"tabmirror/internal/mirror"
	"tabmirror/pkg/models"
)

// Plan partitions one run's work. Every remote item lands in exactly one
// of ToDownload or UpToDate; every index entry with no matching remote
// item lands in Orphaned.
type Plan struct {
	ToDownload []catalog.Item
	UpToDate   []catalog.Item
	Orphaned   []mirror.Entry
}

// Build partitions the remote inventory against the local index and the
// files under baseDir. An item is up to date iff an index entry exists at
// its mirror path, that entry's stored fingerprint equals the item's
// fingerprint, and the file is still present on disk; a tracked file
// deleted out of band is therefore scheduled for re-download rather than
// silently staged as a deletion.
//
// Entries under a project subtree the catalog could not enumerate are not
// reported as orphans: their remote counterparts may exist but were not
// visible this run.
func Build(baseDir string, inv *catalog.Inventory, index *mirror.Index) Plan {
	p := Plan{}

	remotePaths := make(map[string]bool, len(inv.Items))
	for _, item := range inv.Items {
		path := mirror.ItemPath(item)
		remotePaths[path] = true

		entry, ok := index.Lookup(path)
		if ok && entry.Fingerprint == item.Fingerprint && fileExists(filepath.Join(baseDir, path)) {
			p.UpToDate = append(p.UpToDate, item)
		} else {
			p.ToDownload = append(p.ToDownload, item)
		}
	}

	skippedPrefixes := skippedMirrorPrefixes(inv.Skipped)
	for _, entry := range index.Entries() {
		if remotePaths[entry.Path] {
			continue
		}
		if underSkippedSubtree(entry.Path, skippedPrefixes) {
			continue
		}
		p.Orphaned = append(p.Orphaned, entry)
	}

	return p
}

func skippedMirrorPrefixes(skipped []models.SkippedProject) []string {
	prefixes := make([]string, 0, len(skipped))
	for _, s := range skipped {
		prefixes = append(prefixes, mirror.ProjectPrefix(strings.Split(s.Path, "/")))
	}
	return prefixes
}

func underSkippedSubtree(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
