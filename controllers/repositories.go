package controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/gitreportshq/gitreports/middleware"
	"github.com/gitreportshq/gitreports/models"
	"github.com/gitreportshq/gitreports/segment"
	"github.com/gitreportshq/gitreports/services"
)

// RepositoryPage renders the public issue submission form. Only active
// repositories are reachable; everything else is a 404 to not leak what
// exists.
func RepositoryPage(c *gin.Context) {
	repo := findActiveRepository(c)
	if repo == nil {
		return
	}
	c.HTML(http.StatusOK, "repository.tmpl", gin.H{
		"Repo":  repo,
		"Flash": services.GetMessages(c),
	})
}

// SubmitIssue validates the anonymous submission and files it remotely.
func (d GitReportsController) SubmitIssue(c *gin.Context) {
	repo := findActiveRepository(c)
	if repo == nil {
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	email := strings.TrimSpace(c.PostForm("email"))
	details := strings.TrimSpace(c.PostForm("details"))

	if name == "" || details == "" || (email != "" && !strings.Contains(email, "@")) {
		services.AddError(c, "Please fill in your name, a valid email and the details of the issue")
		c.Redirect(http.StatusFound, fmt.Sprintf("/issue/%s/%s", repo.OwnerLogin, repo.Name))
		return
	}

	issue, err := d.GithubService.SubmitIssue(c.Request.Context(), repo.ID, name, email, details)
	if err != nil {
		if errors.Is(err, services.ErrRateLimited) {
			services.AddError(c, "This repository is receiving too many reports right now, please try again later")
		} else {
			slog.Error("Failed to submit issue", "repoId", repo.ID, "error", err)
			services.AddError(c, "Something went wrong submitting your report, please try again later")
		}
		c.Redirect(http.StatusFound, fmt.Sprintf("/issue/%s/%s", repo.OwnerLogin, repo.Name))
		return
	}

	if owner, err := models.DB.GetRepositoryOwner(repo); err == nil && owner != nil {
		segment.Track(owner.ID, "issue_submitted", map[string]string{
			"repo":         repo.FullName(),
			"issue_number": cast.ToString(issue.GetNumber()),
		})
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("/issue/%s/%s/submitted", repo.OwnerLogin, repo.Name))
}

func Submitted(c *gin.Context) {
	repo := findActiveRepository(c)
	if repo == nil {
		return
	}
	c.HTML(http.StatusOK, "submitted.tmpl", gin.H{"Repo": repo})
}

// ActivateRepository makes a repository's public submission page reachable.
// Activation is a user action, never the sync engine's.
func ActivateRepository(c *gin.Context) {
	setRepositoryActive(c, true)
}

func DeactivateRepository(c *gin.Context) {
	setRepositoryActive(c, false)
}

// UpdateIssueSettings saves the per-repository issue title, labels and body
// template used when filing submissions.
func UpdateIssueSettings(c *gin.Context) {
	user, repo, ok := requireOwnRepository(c)
	if !ok {
		return
	}
	err := models.DB.UpdateRepositoryIssueSettings(repo,
		strings.TrimSpace(c.PostForm("issue_name")),
		strings.TrimSpace(c.PostForm("labels")),
		c.PostForm("issue_template"))
	if err != nil {
		c.String(http.StatusInternalServerError, "Unknown error occurred while fetching database")
		return
	}
	slog.Info("repository issue settings saved", "repoId", repo.ID, "userId", user.ID)
	services.AddMessage(c, "Repository settings saved")
	c.Redirect(http.StatusFound, "/profile")
}

// LoadRepositories kicks off a background sync of the logged-in user's
// repositories and organizations.
func (d GitReportsController) LoadRepositories(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.String(http.StatusForbidden, "Not allowed to access this resource")
		return
	}

	status, err := d.GithubService.StartBackgroundSync(user)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to start repository load")
		return
	}

	segment.Track(user.ID, "repositories_load_started", nil)
	c.JSON(http.StatusOK, gin.H{"state": status.State})
}

// LoadStatus reports the latest sync's progress so the profile page can
// poll it.
func LoadStatus(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.String(http.StatusForbidden, "Not allowed to access this resource")
		return
	}

	status, err := models.DB.GetLatestSyncStatus(user)
	if err != nil {
		c.String(http.StatusInternalServerError, "Unknown error occurred while fetching database")
		return
	}
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"state": "none"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": status.State, "detail": status.Detail})
}

func findActiveRepository(c *gin.Context) *models.Repository {
	repo, err := models.DB.GetRepositoryByOwnerAndName(c.Param("username"), c.Param("reponame"))
	if err != nil {
		c.String(http.StatusInternalServerError, "Unknown error occurred while fetching database")
		return nil
	}
	if repo == nil || !repo.IsActive {
		c.String(http.StatusNotFound, "Repository not found")
		return nil
	}
	return repo
}

func setRepositoryActive(c *gin.Context, active bool) {
	user, repo, ok := requireOwnRepository(c)
	if !ok {
		return
	}
	if err := models.DB.SetRepositoryActive(repo, active); err != nil {
		c.String(http.StatusInternalServerError, "Unknown error occurred while fetching database")
		return
	}
	action := "repository_deactivated"
	if active {
		action = "repository_activated"
	}
	segment.Track(user.ID, action, map[string]string{"repo": repo.FullName()})
	c.Redirect(http.StatusFound, "/profile")
}

// requireOwnRepository loads the :id repository and verifies the logged-in
// user is currently associated with it.
func requireOwnRepository(c *gin.Context) (*models.User, *models.Repository, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.String(http.StatusForbidden, "Not allowed to access this resource")
		return nil, nil, false
	}

	repoId := cast.ToUint(c.Param("id"))
	if repoId == 0 {
		c.String(http.StatusBadRequest, "Failed to parse repository id")
		return nil, nil, false
	}

	repo, err := models.DB.GetRepositoryById(repoId)
	if err != nil {
		c.String(http.StatusInternalServerError, "Unknown error occurred while fetching database")
		return nil, nil, false
	}
	if repo == nil {
		c.String(http.StatusNotFound, "Repository not found")
		return nil, nil, false
	}

	associated, err := models.DB.GetUserRepositoryByGithubId(user, repo.GithubId)
	if err != nil {
		c.String(http.StatusInternalServerError, "Unknown error occurred while fetching database")
		return nil, nil, false
	}
	if associated == nil {
		c.String(http.StatusForbidden, "Not allowed to access this resource")
		return nil, nil, false
	}
	return user, repo, true
}
