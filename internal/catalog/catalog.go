package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"tabmirror/internal/tableau"
	"tabmirror/pkg/errors"
	"tabmirror/pkg/models"
)

// Item is one remote workbook or datasource, an immutable snapshot of
// server state at enumeration time
type Item struct {
	ID          string
	Kind        tableau.ContentKind
	Name        string
	ProjectPath []string // project names from root to leaf
	Fingerprint string
	Size        int64
}

// Inventory is the full addressable set of remote items for one run
type Inventory struct {
	Items   []Item
	Skipped []models.SkippedProject
}

// Builder enumerates the site's project hierarchy and its content
type Builder struct {
	client tableau.Client
}

// NewBuilder creates a catalog builder over an authenticated session
func NewBuilder(client tableau.Client) *Builder {
	return &Builder{client: client}
}

// Build traverses the full project tree and returns the remote inventory.
// A subtree whose content cannot be listed is skipped and recorded rather
// than aborting the run; failure to list the projects themselves is fatal
// because nothing below the root is visible.
func (b *Builder) Build(ctx context.Context) (*Inventory, error) {
	projects, err := b.client.ListProjects(ctx)
	if err != nil {
		if errors.IsFatal(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDiscoveryFailed,
			"Failed to list site projects").WithSeverity(errors.SeverityCritical)
	}

	byParent := make(map[string][]tableau.Project)
	for _, p := range projects {
		byParent[p.ParentID] = append(byParent[p.ParentID], p)
	}
	for _, children := range byParent {
		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	}

	inv := &Inventory{}
	for _, root := range byParent[""] {
		b.walk(ctx, root, nil, byParent, inv)
	}
	return inv, nil
}

// walk visits one project and recurses into its children. Content listing
// failures scope to the current project; children are still visited
// because the server authorizes each project independently.
func (b *Builder) walk(ctx context.Context, project tableau.Project, parentPath []string, byParent map[string][]tableau.Project, inv *Inventory) {
	path := append(append([]string{}, parentPath...), project.Name)

	if err := b.collect(ctx, project, path, inv); err != nil {
		inv.Skipped = append(inv.Skipped, models.SkippedProject{
			Path:   strings.Join(path, "/"),
			Reason: err.Error(),
		})
	}

	for _, child := range byParent[project.ID] {
		b.walk(ctx, child, path, byParent, inv)
	}
}

func (b *Builder) collect(ctx context.Context, project tableau.Project, path []string, inv *Inventory) error {
	workbooks, err := b.client.ListWorkbooks(ctx, project.Name)
	if err != nil {
		return errors.DiscoveryError(strings.Join(path, "/"), err)
	}
	datasources, err := b.client.ListDatasources(ctx, project.Name)
	if err != nil {
		return errors.DiscoveryError(strings.Join(path, "/"), err)
	}

	// the projectName filter matches by name; a sibling project elsewhere
	// in the tree with the same name would match too, so keep only content
	// that actually belongs to this project node
	for _, c := range append(workbooks, datasources...) {
		if c.ProjectID != "" && c.ProjectID != project.ID {
			continue
		}
		inv.Items = append(inv.Items, Item{
			ID:          c.ID,
			Kind:        c.Kind,
			Name:        c.Name,
			ProjectPath: path,
			Fingerprint: Fingerprint(c),
			Size:        c.Size,
		})
	}
	return nil
}

// Fingerprint derives the content fingerprint from the server-reported
// metadata. It is a staleness token for equality comparison only, not an
// integrity measure; xxhash is plenty at this scale.
func Fingerprint(c tableau.Content) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(c.ID+"|"+c.UpdatedAt+"|"+fmt.Sprint(c.Size)))
}
