package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"tabmirror/internal/config"
	"tabmirror/pkg/models"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Initial configuration setup",
	Run:   runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) {
	fmt.Println("Setting up tabmirror...")
	fmt.Println()

	if config.Exists() {
		var overwrite bool
		prompt := &survey.Confirm{
			Message: "Configuration already exists. Do you want to overwrite it?",
			Default: false,
		}
		survey.AskOne(prompt, &overwrite)
		if !overwrite {
			fmt.Println("Setup cancelled.")
			return
		}
	}

	cfg := models.DefaultConfig()

	fmt.Println("Tableau Server")
	fmt.Println("--------------")

	tableauQs := []*survey.Question{
		{
			Name: "serverurl",
			Prompt: &survey.Input{
				Message: "Server URL (e.g. https://tableau.example.com):",
			},
			Validate: survey.Required,
		},
		{
			Name: "site",
			Prompt: &survey.Input{
				Message: "Site content URL (empty for the default site):",
			},
		},
		{
			Name: "apiversion",
			Prompt: &survey.Input{
				Message: "REST API version:",
				Default: cfg.Tableau.APIVersion,
			},
			Validate: survey.Required,
		},
	}

	tableauAnswers := struct {
		ServerURL  string `survey:"serverurl"`
		Site       string
		APIVersion string `survey:"apiversion"`
	}{}
	if err := survey.Ask(tableauQs, &tableauAnswers); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Tableau.ServerURL = tableauAnswers.ServerURL
	cfg.Tableau.Site = tableauAnswers.Site
	cfg.Tableau.APIVersion = tableauAnswers.APIVersion

	fmt.Println()
	fmt.Println("Git Repository")
	fmt.Println("--------------")

	gitQs := []*survey.Question{
		{
			Name: "repourl",
			Prompt: &survey.Input{
				Message: "Remote URL for the mirror repository:",
			},
			Validate: survey.Required,
		},
		{
			Name: "branch",
			Prompt: &survey.Input{
				Message: "Branch:",
				Default: "main",
			},
			Validate: survey.Required,
		},
		{
			Name: "authorname",
			Prompt: &survey.Input{
				Message: "Commit author name:",
				Default: cfg.Git.Author.Name,
			},
			Validate: survey.Required,
		},
		{
			Name: "authoremail",
			Prompt: &survey.Input{
				Message: "Commit author email:",
				Default: cfg.Git.Author.Email,
			},
			Validate: survey.Required,
		},
	}

	gitAnswers := struct {
		RepoURL     string `survey:"repourl"`
		Branch      string
		AuthorName  string `survey:"authorname"`
		AuthorEmail string `survey:"authoremail"`
	}{}
	if err := survey.Ask(gitQs, &gitAnswers); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Git.RepoURL = gitAnswers.RepoURL
	cfg.Git.Branch = gitAnswers.Branch
	cfg.Git.Author.Name = gitAnswers.AuthorName
	cfg.Git.Author.Email = gitAnswers.AuthorEmail

	fmt.Println()
	fmt.Println("Mirror")
	fmt.Println("------")

	mirrorQs := []*survey.Question{
		{
			Name: "basedir",
			Prompt: &survey.Input{
				Message: "Mirror directory:",
				Default: cfg.Mirror.BaseDir,
			},
			Validate: survey.Required,
		},
		{
			Name: "overwrite",
			Prompt: &survey.Confirm{
				Message: "Overwrite locally modified files?",
				Default: false,
			},
		},
		{
			Name: "deleteorphans",
			Prompt: &survey.Confirm{
				Message: "Delete local files removed from the server?",
				Default: false,
			},
		},
	}

	mirrorAnswers := struct {
		BaseDir       string `survey:"basedir"`
		Overwrite     bool
		DeleteOrphans bool `survey:"deleteorphans"`
	}{}
	if err := survey.Ask(mirrorQs, &mirrorAnswers); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Mirror.BaseDir = mirrorAnswers.BaseDir
	cfg.Mirror.OverwriteExisting = mirrorAnswers.Overwrite
	cfg.Mirror.DeleteOrphans = mirrorAnswers.DeleteOrphans

	if err := config.Save(cfg); err != nil {
		fmt.Printf("Error saving configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Configuration saved to:", config.GetConfigFile())
	fmt.Println()

	offerCredentialStorage()
}

// offerCredentialStorage optionally stores the Tableau password in the
// system keyring so the environment variables are not required
func offerCredentialStorage() {
	var store bool
	prompt := &survey.Confirm{
		Message: "Store a Tableau password in the system keyring now?",
		Default: false,
	}
	survey.AskOne(prompt, &store)
	if !store {
		fmt.Println("Set TABLEAU_USERNAME/TABLEAU_PASSWORD or TABLEAU_TOKEN_NAME/TABLEAU_TOKEN_VALUE before running sync.")
		return
	}

	var username, password string
	survey.AskOne(&survey.Input{Message: "Username:"}, &username, survey.WithValidator(survey.Required))
	survey.AskOne(&survey.Password{Message: "Password:"}, &password, survey.WithValidator(survey.Required))

	if err := config.StorePassword(username, password); err != nil {
		fmt.Printf("Could not store credentials: %v\n", err)
		return
	}
	fmt.Println("Credentials stored. Set TABLEAU_USERNAME to use them.")
}
