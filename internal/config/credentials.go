package config

import (
	"os"

	"github.com/zalando/go-keyring"

	"tabmirror/pkg/errors"
)

const keyringService = "tabmirror"

// TableauCredentials holds the secrets used to sign in to the server.
// Exactly one of (TokenName, TokenValue) or (Username, Password) is set.
// Credentials are handed in at startup and never persisted.
type TableauCredentials struct {
	Username   string
	Password   string
	TokenName  string
	TokenValue string
}

// UsesToken reports whether a personal access token is configured
func (c TableauCredentials) UsesToken() bool {
	return c.TokenName != "" && c.TokenValue != ""
}

// ResolveTableauCredentials reads Tableau secrets from the environment,
// falling back to the OS keyring for the password when only a username is
// present. Token auth wins over username/password when both are set.
func ResolveTableauCredentials() (TableauCredentials, error) {
	creds := TableauCredentials{
		Username:   os.Getenv("TABLEAU_USERNAME"),
		Password:   os.Getenv("TABLEAU_PASSWORD"),
		TokenName:  os.Getenv("TABLEAU_TOKEN_NAME"),
		TokenValue: os.Getenv("TABLEAU_TOKEN_VALUE"),
	}

	if creds.UsesToken() {
		return creds, nil
	}

	if creds.Username != "" && creds.Password == "" {
		if secret, err := keyring.Get(keyringService, creds.Username); err == nil {
			creds.Password = secret
		}
	}

	if creds.Username == "" || creds.Password == "" {
		return creds, errors.New(errors.ErrCodeCredentialsMissing,
			"Tableau credentials not found in environment").
			WithSeverity(errors.SeverityCritical).
			WithSuggestions(
				"Set TABLEAU_USERNAME and TABLEAU_PASSWORD",
				"Or set TABLEAU_TOKEN_NAME and TABLEAU_TOKEN_VALUE for token auth",
				"Or store the password in the OS keyring via 'tabmirror setup'",
			)
	}

	return creds, nil
}

// StorePassword saves a Tableau password in the OS keyring
func StorePassword(username, password string) error {
	return keyring.Set(keyringService, username, password)
}
