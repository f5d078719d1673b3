package tableau

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabmirror/internal/config"
	"tabmirror/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*RESTClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(srv.URL, "", "3.22", 5*time.Second), srv
}

func signInHandler(t *testing.T, mux *http.ServeMux) {
	t.Helper()
	mux.HandleFunc("/api/3.22/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"credentials":{"token":"session-token","site":{"id":"site-1"}}}`)
	})
}

func TestSignInWithPassword(t *testing.T) {
	mux := http.NewServeMux()
	signInHandler(t, mux)
	client, _ := newTestClient(t, mux)

	creds := config.TableauCredentials{Username: "svc", Password: "pw"}
	require.NoError(t, client.SignIn(context.Background(), creds))
	assert.Equal(t, "session-token", client.token)
	assert.Equal(t, "site-1", client.siteID)
}

func TestSignInRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/3.22/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"summary":"Login error","detail":"bad credentials","code":"401001"}}`)
	})
	client, _ := newTestClient(t, mux)

	err := client.SignIn(context.Background(), config.TableauCredentials{Username: "svc", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthenticationFailed, errors.GetErrorCode(err))
	assert.True(t, errors.IsFatal(err))
}

func TestListProjectsPaged(t *testing.T) {
	mux := http.NewServeMux()
	signInHandler(t, mux)
	mux.HandleFunc("/api/3.22/sites/site-1/projects", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "session-token", r.Header.Get("X-Tableau-Auth"))
		page := r.URL.Query().Get("pageNumber")
		w.Header().Set("Content-Type", "application/json")
		if page == "1" {
			// claim 101 total so the client must request a second page
			fmt.Fprint(w, `{"pagination":{"pageNumber":"1","pageSize":"100","totalAvailable":"101"},
				"projects":{"project":[{"id":"p1","name":"Finance"},{"id":"p2","name":"Q1","parentProjectId":"p1"}]}}`)
			return
		}
		fmt.Fprint(w, `{"pagination":{"pageNumber":"2","pageSize":"100","totalAvailable":"101"},
			"projects":{"project":[{"id":"p3","name":"Archive"}]}}`)
	})
	client, _ := newTestClient(t, mux)
	require.NoError(t, client.SignIn(context.Background(), config.TableauCredentials{Username: "u", Password: "p"}))

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, "p1", projects[1].ParentID)
	assert.Equal(t, "Archive", projects[2].Name)
}

func TestListWorkbooksPermissionDenied(t *testing.T) {
	mux := http.NewServeMux()
	signInHandler(t, mux)
	mux.HandleFunc("/api/3.22/sites/site-1/workbooks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"summary":"Forbidden","detail":"no read permission","code":"403004"}}`)
	})
	client, _ := newTestClient(t, mux)
	require.NoError(t, client.SignIn(context.Background(), config.TableauCredentials{Username: "u", Password: "p"}))

	_, err := client.ListWorkbooks(context.Background(), "Restricted")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePermissionDenied, errors.GetErrorCode(err))
}

func TestDownloadStreamsContent(t *testing.T) {
	payload := []byte("twbx-bytes")
	mux := http.NewServeMux()
	signInHandler(t, mux)
	mux.HandleFunc("/api/3.22/sites/site-1/workbooks/wb-1/content", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})
	client, _ := newTestClient(t, mux)
	require.NoError(t, client.SignIn(context.Background(), config.TableauCredentials{Username: "u", Password: "p"}))

	rc, err := client.Download(context.Background(), KindWorkbook, "wb-1")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDownloadRetryableStatus(t *testing.T) {
	mux := http.NewServeMux()
	signInHandler(t, mux)
	mux.HandleFunc("/api/3.22/sites/site-1/datasources/ds-1/content", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client, _ := newTestClient(t, mux)
	require.NoError(t, client.SignIn(context.Background(), config.TableauCredentials{Username: "u", Password: "p"}))

	_, err := client.Download(context.Background(), KindDatasource, "ds-1")
	require.Error(t, err)
	assert.True(t, errors.IsRecoverable(err))
}

func TestKindExtension(t *testing.T) {
	assert.Equal(t, ".twbx", KindWorkbook.Extension())
	assert.Equal(t, ".tdsx", KindDatasource.Extension())
}
