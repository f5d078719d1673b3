package tableau

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tabmirror/internal/config"
	"tabmirror/pkg/errors"
)

const defaultPageSize = 100

// Client is the server session the catalog and scheduler operate against
type Client interface {
	SignIn(ctx context.Context, creds config.TableauCredentials) error
	SignOut(ctx context.Context) error
	ListProjects(ctx context.Context) ([]Project, error)
	ListWorkbooks(ctx context.Context, projectName string) ([]Content, error)
	ListDatasources(ctx context.Context, projectName string) ([]Content, error)
	Download(ctx context.Context, kind ContentKind, id string) (io.ReadCloser, error)
}

// RESTClient talks to the Tableau Server REST API
type RESTClient struct {
	serverURL  string
	site       string
	apiVersion string
	httpClient *http.Client

	token  string
	siteID string
}

// NewRESTClient creates a client for the given server and site
func NewRESTClient(serverURL, site, apiVersion string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		serverURL:  strings.TrimRight(serverURL, "/"),
		site:       site,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SignIn establishes an authenticated session, via personal access token
// when one is configured and username/password otherwise
func (c *RESTClient) SignIn(ctx context.Context, creds config.TableauCredentials) error {
	reqBody := signInRequest{
		Credentials: signInCredentials{
			Site: signInSite{ContentURL: c.site},
		},
	}
	if creds.UsesToken() {
		reqBody.Credentials.TokenName = creds.TokenName
		reqBody.Credentials.TokenSecret = creds.TokenValue
	} else {
		reqBody.Credentials.Name = creds.Username
		reqBody.Credentials.Password = creds.Password
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode sign-in request")
	}

	var resp signInResponse
	if err := c.doJSON(ctx, http.MethodPost, c.apiURL("auth/signin"), payload, &resp); err != nil {
		if errors.GetErrorCode(err) == errors.ErrCodePermissionDenied ||
			errors.GetErrorCode(err) == errors.ErrCodeSessionExpired {
			return errors.AuthenticationError("Tableau server rejected the sign-in request", err)
		}
		return err
	}

	if resp.Credentials.Token == "" {
		return errors.AuthenticationError("Tableau server returned no session token", nil)
	}

	c.token = resp.Credentials.Token
	c.siteID = resp.Credentials.Site.ID
	return nil
}

// SignOut invalidates the server session
func (c *RESTClient) SignOut(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	err := c.doJSON(ctx, http.MethodPost, c.apiURL("auth/signout"), nil, nil)
	c.token = ""
	c.siteID = ""
	return err
}

// ListProjects returns every project visible to the session, fully paged
func (c *RESTClient) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := c.paged(ctx, func(page int) (int, error) {
		u := c.siteURL("projects") + fmt.Sprintf("?pageSize=%d&pageNumber=%d", defaultPageSize, page)
		var resp projectsResponse
		if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
			return 0, err
		}
		for _, p := range resp.Projects.Project {
			projects = append(projects, Project{ID: p.ID, Name: p.Name, ParentID: p.ParentProjectID})
		}
		return totalAvailable(resp.Pagination), nil
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// ListWorkbooks returns the workbooks in the named project
func (c *RESTClient) ListWorkbooks(ctx context.Context, projectName string) ([]Content, error) {
	var items []Content
	err := c.paged(ctx, func(page int) (int, error) {
		u := c.siteURL("workbooks") + fmt.Sprintf("?pageSize=%d&pageNumber=%d&filter=%s",
			defaultPageSize, page, projectFilter(projectName))
		var resp workbooksResponse
		if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
			return 0, err
		}
		for _, w := range resp.Workbooks.Workbook {
			items = append(items, toContent(w, KindWorkbook))
		}
		return totalAvailable(resp.Pagination), nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListDatasources returns the datasources in the named project
func (c *RESTClient) ListDatasources(ctx context.Context, projectName string) ([]Content, error) {
	var items []Content
	err := c.paged(ctx, func(page int) (int, error) {
		u := c.siteURL("datasources") + fmt.Sprintf("?pageSize=%d&pageNumber=%d&filter=%s",
			defaultPageSize, page, projectFilter(projectName))
		var resp datasourcesResponse
		if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
			return 0, err
		}
		for _, d := range resp.Datasources.Datasource {
			items = append(items, toContent(d, KindDatasource))
		}
		return totalAvailable(resp.Pagination), nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Download streams the packaged content of a workbook or datasource.
// The caller owns the returned reader.
func (c *RESTClient) Download(ctx context.Context, kind ContentKind, id string) (io.ReadCloser, error) {
	var u string
	switch kind {
	case KindWorkbook:
		u = c.siteURL("workbooks/" + id + "/content")
	case KindDatasource:
		u = c.siteURL("datasources/" + id + "/content")
	default:
		return nil, errors.New(errors.ErrCodeInternal, fmt.Sprintf("unknown content kind %q", kind))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build download request")
	}
	req.Header.Set("X-Tableau-Auth", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, "download request failed")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, classifyStatus(resp, "download rejected by server")
	}

	return resp.Body, nil
}

func (c *RESTClient) apiURL(path string) string {
	return fmt.Sprintf("%s/api/%s/%s", c.serverURL, c.apiVersion, path)
}

func (c *RESTClient) siteURL(path string) string {
	return c.apiURL("sites/" + c.siteID + "/" + path)
}

// paged invokes fetch for successive page numbers until the reported total
// is exhausted
func (c *RESTClient) paged(ctx context.Context, fetch func(page int) (int, error)) error {
	for page := 1; ; page++ {
		total, err := fetch(page)
		if err != nil {
			return err
		}
		if page*defaultPageSize >= total {
			return nil
		}
	}
}

func (c *RESTClient) doJSON(ctx context.Context, method, u string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Tableau-Auth", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(resp, fmt.Sprintf("server returned %s", resp.Status))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to decode server response")
	}
	return nil
}

func classifyTransportError(err error, message string) error {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(err, errors.ErrCodeConnectionTimeout, message).AsRecoverable()
	}
	return errors.NetworkError(message, err)
}

func classifyStatus(resp *http.Response, message string) error {
	detail := readAPIError(resp)
	if detail != "" {
		message = message + ": " + detail
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return errors.New(errors.ErrCodeSessionExpired, message)
	case http.StatusForbidden:
		return errors.New(errors.ErrCodePermissionDenied, message)
	case http.StatusNotFound:
		return errors.New(errors.ErrCodeDownloadFailed, message)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return errors.New(errors.ErrCodeNetworkUnavailable, message).AsRecoverable()
	default:
		return errors.New(errors.ErrCodeDownloadFailed, message)
	}
}

func readAPIError(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Summary != "" {
		return apiErr.Error.Summary + " - " + apiErr.Error.Detail
	}
	return ""
}

func projectFilter(projectName string) string {
	return url.QueryEscape("projectName:eq:" + projectName)
}

func totalAvailable(p pagination) int {
	n, err := strconv.Atoi(p.TotalAvailable)
	if err != nil {
		return 0
	}
	return n
}

func toContent(rec contentRecord, kind ContentKind) Content {
	size, _ := strconv.ParseInt(rec.Size, 10, 64)
	return Content{
		ID:        rec.ID,
		Kind:      kind,
		Name:      rec.Name,
		ProjectID: rec.Project.ID,
		UpdatedAt: rec.UpdatedAt,
		Size:      size,
	}
}
