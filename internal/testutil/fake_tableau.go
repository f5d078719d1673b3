package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"tabmirror/internal/config"
	"tabmirror/internal/tableau"
	"tabmirror/pkg/errors"
)

// FakeTableauClient is an in-memory tableau.Client for tests. Projects and
// content are configured up front; individual behaviors can be overridden
// to simulate permission denials and download failures.
type FakeTableauClient struct {
	mu sync.Mutex

	Projects    []tableau.Project
	Workbooks   map[string][]tableau.Content // keyed by project name
	Datasources map[string][]tableau.Content
	ContentData map[string][]byte // keyed by content ID

	SignInErr        error
	DeniedProjects   map[string]bool  // project names whose listing is forbidden
	FailDownloads    map[string]error // content IDs whose download fails
	DownloadStarted  func(id string)  // instrumentation hook, called at fetch start
	DownloadFinished func(id string)

	SignedIn   bool
	SignOutErr error
	Downloads  []string // IDs fetched, in completion order
}

// NewFakeTableauClient returns an empty fake ready for configuration
func NewFakeTableauClient() *FakeTableauClient {
	return &FakeTableauClient{
		Workbooks:      map[string][]tableau.Content{},
		Datasources:    map[string][]tableau.Content{},
		ContentData:    map[string][]byte{},
		DeniedProjects: map[string]bool{},
		FailDownloads:  map[string]error{},
	}
}

func (f *FakeTableauClient) SignIn(ctx context.Context, creds config.TableauCredentials) error {
	if f.SignInErr != nil {
		return f.SignInErr
	}
	f.SignedIn = true
	return nil
}

func (f *FakeTableauClient) SignOut(ctx context.Context) error {
	f.SignedIn = false
	return f.SignOutErr
}

func (f *FakeTableauClient) ListProjects(ctx context.Context) ([]tableau.Project, error) {
	return f.Projects, nil
}

func (f *FakeTableauClient) ListWorkbooks(ctx context.Context, projectName string) ([]tableau.Content, error) {
	if f.DeniedProjects[projectName] {
		return nil, errors.New(errors.ErrCodePermissionDenied, "permission denied")
	}
	return f.Workbooks[projectName], nil
}

func (f *FakeTableauClient) ListDatasources(ctx context.Context, projectName string) ([]tableau.Content, error) {
	if f.DeniedProjects[projectName] {
		return nil, errors.New(errors.ErrCodePermissionDenied, "permission denied")
	}
	return f.Datasources[projectName], nil
}

func (f *FakeTableauClient) Download(ctx context.Context, kind tableau.ContentKind, id string) (io.ReadCloser, error) {
	if f.DownloadStarted != nil {
		f.DownloadStarted(id)
	}
	if f.DownloadFinished != nil {
		defer f.DownloadFinished(id)
	}

	if err, ok := f.FailDownloads[id]; ok {
		return nil, err
	}

	data, ok := f.ContentData[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeDownloadFailed, "content not found")
	}

	f.mu.Lock()
	f.Downloads = append(f.Downloads, id)
	f.mu.Unlock()

	return io.NopCloser(bytes.NewReader(data)), nil
}

// AddWorkbook registers a workbook under a project name with its content
func (f *FakeTableauClient) AddWorkbook(projectName string, c tableau.Content, data []byte) {
	c.Kind = tableau.KindWorkbook
	f.Workbooks[projectName] = append(f.Workbooks[projectName], c)
	f.ContentData[c.ID] = data
}

// AddDatasource registers a datasource under a project name with its content
func (f *FakeTableauClient) AddDatasource(projectName string, c tableau.Content, data []byte) {
	c.Kind = tableau.KindDatasource
	f.Datasources[projectName] = append(f.Datasources[projectName], c)
	f.ContentData[c.ID] = data
}
