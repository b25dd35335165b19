package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// sshCredentials is the payload of a sensitive request to PathSecureSSH.
type sshCredentials struct {
	Hostname   string `json:"hostname"`
	Username   string `json:"username"`
	Port       int    `json:"port,omitempty"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
}

// sshResult is returned to the client. It never contains the secrets.
type sshResult struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Details *sshDetails `json:"details,omitempty"`
}

type sshDetails struct {
	Hostname      string `json:"hostname"`
	Username      string `json:"username"`
	Port          int    `json:"port"`
	HasPassword   bool   `json:"has_password"`
	HasPrivateKey bool   `json:"has_private_key"`
}

const defaultSSHPort = 22

func (c *sshCredentials) validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.Hostname) == "" {
		result = multierror.Append(result, fmt.Errorf("hostname is required"))
	}
	if strings.TrimSpace(c.Username) == "" {
		result = multierror.Append(result, fmt.Errorf("username is required"))
	}
	if c.Password == "" && c.PrivateKey == "" {
		result = multierror.Append(result, fmt.Errorf("either password or private_key is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("port %d is out of range", c.Port))
	}

	return result.ErrorOrNil()
}

// processSSHCredentials validates credentials and summarizes them.
func processSSHCredentials(payload json.RawMessage) sshResult {
	var creds sshCredentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return sshResult{Status: "error", Message: fmt.Sprintf("invalid SSH credentials: %s", err)}
	}

	if err := creds.validate(); err != nil {
		return sshResult{Status: "error", Message: fmt.Sprintf("invalid SSH credentials: %s", flatten(err))}
	}

	port := creds.Port
	if port == 0 {
		port = defaultSSHPort
	}

	return sshResult{
		Status:  "success",
		Message: "SSH credentials processed successfully",
		Details: &sshDetails{
			Hostname:      creds.Hostname,
			Username:      creds.Username,
			Port:          port,
			HasPassword:   creds.Password != "",
			HasPrivateKey: creds.PrivateKey != "",
		},
	}
}

// flatten renders a multierror on one line.
func flatten(err error) string {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return err.Error()
	}

	msgs := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
