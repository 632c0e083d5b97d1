package controllers

import (
	"github.com/gitreportshq/gitreports/services"
)

// GitReportsController carries the service wiring for all handlers so tests
// can swap the GitHub client provider for a mocked one.
type GitReportsController struct {
	GithubService *services.GithubService
}
