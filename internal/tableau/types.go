package tableau

// ContentKind identifies the kind of downloadable Tableau content
type ContentKind string

const (
	KindWorkbook   ContentKind = "workbook"
	KindDatasource ContentKind = "datasource"
)

// Extension returns the file extension used when the content is mirrored
// to disk. Workbooks download as packaged .twbx, datasources as .tdsx.
func (k ContentKind) Extension() string {
	switch k {
	case KindWorkbook:
		return ".twbx"
	case KindDatasource:
		return ".tdsx"
	default:
		return ".bin"
	}
}

// Project is one node of the site's project hierarchy
type Project struct {
	ID       string
	Name     string
	ParentID string
}

// Content is a workbook or datasource as reported by the server
type Content struct {
	ID        string
	Kind      ContentKind
	Name      string
	ProjectID string
	UpdatedAt string
	Size      int64
}

// wire types for the REST API JSON bodies

type signInRequest struct {
	Credentials signInCredentials `json:"credentials"`
}

type signInCredentials struct {
	Name        string     `json:"name,omitempty"`
	Password    string     `json:"password,omitempty"`
	TokenName   string     `json:"personalAccessTokenName,omitempty"`
	TokenSecret string     `json:"personalAccessTokenSecret,omitempty"`
	Site        signInSite `json:"site"`
}

type signInSite struct {
	ContentURL string `json:"contentUrl"`
}

type signInResponse struct {
	Credentials struct {
		Token string `json:"token"`
		Site  struct {
			ID string `json:"id"`
		} `json:"site"`
	} `json:"credentials"`
}

type pagination struct {
	PageNumber     string `json:"pageNumber"`
	PageSize       string `json:"pageSize"`
	TotalAvailable string `json:"totalAvailable"`
}

type projectsResponse struct {
	Pagination pagination `json:"pagination"`
	Projects   struct {
		Project []struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			ParentProjectID string `json:"parentProjectId"`
		} `json:"project"`
	} `json:"projects"`
}

type workbooksResponse struct {
	Pagination pagination `json:"pagination"`
	Workbooks  struct {
		Workbook []contentRecord `json:"workbook"`
	} `json:"workbooks"`
}

type datasourcesResponse struct {
	Pagination  pagination `json:"pagination"`
	Datasources struct {
		Datasource []contentRecord `json:"datasource"`
	} `json:"datasources"`
}

type contentRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updatedAt"`
	Size      string `json:"size"`
	Project   struct {
		ID string `json:"id"`
	} `json:"project"`
}

type apiError struct {
	Error struct {
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
		Code    string `json:"code"`
	} `json:"error"`
}
