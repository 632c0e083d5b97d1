package controllers

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/gitreportshq/gitreports/middleware"
	"github.com/gitreportshq/gitreports/models"
	"github.com/gitreportshq/gitreports/services"
)

func Home(c *gin.Context) {
	session := sessions.Default(c)
	token, _ := session.Get(middleware.ACCESS_TOKEN_KEY).(string)
	c.HTML(http.StatusOK, "home.tmpl", gin.H{
		"LoggedIn": token != "",
		"Flash":    services.GetMessages(c),
	})
}

func Tutorial(c *gin.Context) {
	c.HTML(http.StatusOK, "tutorial.tmpl", gin.H{})
}

func About(c *gin.Context) {
	c.HTML(http.StatusOK, "about.tmpl", gin.H{})
}

// ProfilePage shows the logged-in user's repositories, personal ones first,
// then grouped by organization.
func ProfilePage(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.String(http.StatusForbidden, "Not allowed to access this resource")
		return
	}

	repos, err := models.DB.ListUserRepositories(user)
	if err != nil {
		c.String(http.StatusInternalServerError, "Unknown error occurred while fetching database")
		return
	}

	personal := lo.Filter(repos, func(r models.Repository, _ int) bool {
		return r.OrganizationID == nil
	})
	byOrg := lo.GroupBy(lo.Filter(repos, func(r models.Repository, _ int) bool {
		return r.OrganizationID != nil
	}), func(r models.Repository) string {
		return r.Organization.Name
	})

	var syncState string
	if status, err := models.DB.GetLatestSyncStatus(user); err == nil && status != nil {
		syncState = string(status.State)
	}

	c.HTML(http.StatusOK, "profile.tmpl", gin.H{
		"User":          user,
		"PersonalRepos": personal,
		"OrgRepos":      byOrg,
		"SyncState":     syncState,
		"Flash":         services.GetMessages(c),
	})
}
