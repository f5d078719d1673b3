package models

type Config struct {
	Tableau Tableau `yaml:"tableau"`
	Git     Git     `yaml:"git"`
	Mirror  Mirror  `yaml:"mirror"`
	Sync    Sync    `yaml:"sync"`
}

type Tableau struct {
	ServerURL  string `yaml:"server_url"`
	Site       string `yaml:"site"`        // content URL of the site; empty for the default site
	APIVersion string `yaml:"api_version"` // REST API version, e.g. "3.22"
	Timeout    string `yaml:"timeout"`     // per-request timeout, e.g. "2m"
}

type Git struct {
	RepoURL string    `yaml:"repo_url"`
	Branch  string    `yaml:"branch"`
	Author  GitAuthor `yaml:"author"`
}

type GitAuthor struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type Mirror struct {
	BaseDir           string `yaml:"base_dir"`
	OverwriteExisting bool   `yaml:"overwrite_existing"`
	DeleteOrphans     bool   `yaml:"delete_orphans"`
}

type Sync struct {
	MaxWorkers      int    `yaml:"max_workers"`
	DownloadRetries int    `yaml:"download_retries"`
	ItemTimeout     string `yaml:"item_timeout"` // per-item download timeout, e.g. "5m"
}

// DefaultConfig returns the configuration written on first run
func DefaultConfig() *Config {
	return &Config{
		Tableau: Tableau{
			ServerURL:  "https://tableau.server.com",
			APIVersion: "3.22",
			Timeout:    "2m",
		},
		Git: Git{
			RepoURL: "https://git.example.com/projects/tableau-mirror.git",
			Branch:  "main",
			Author: GitAuthor{
				Name:  "tabmirror",
				Email: "tabmirror@localhost",
			},
		},
		Mirror: Mirror{
			BaseDir:           "Tableau_Projects",
			OverwriteExisting: false,
			DeleteOrphans:     false,
		},
		Sync: Sync{
			MaxWorkers:      4,
			DownloadRetries: 2,
			ItemTimeout:     "5m",
		},
	}
}
