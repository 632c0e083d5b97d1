package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dchest/uniuri"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/gitreportshq/gitreports/config"
	"github.com/gitreportshq/gitreports/middleware"
	"github.com/gitreportshq/gitreports/segment"
	"github.com/gitreportshq/gitreports/services"
)

const oauthStateKey = "oauth_state"

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     config.GithubClientId(),
		ClientSecret: config.GithubClientSecret(),
		Endpoint:     githuboauth.Endpoint,
		Scopes:       []string{"repo", "read:org", "user:email"},
		RedirectURL:  config.GetBaseUrl() + "/github_callback",
	}
}

// Login redirects to GitHub's authorize page with a one-time state nonce.
func (d GitReportsController) Login(c *gin.Context) {
	state := uniuri.New()
	session := sessions.Default(c)
	session.Set(oauthStateKey, state)
	if err := session.Save(); err != nil {
		slog.Error("failed to save session", "error", err)
		c.String(http.StatusInternalServerError, "Failed to start login")
		return
	}
	c.Redirect(http.StatusFound, oauthConfig().AuthCodeURL(state))
}

// GithubCallback exchanges the OAuth code, refreshes the user's identity and
// stores the access token in the session.
func (d GitReportsController) GithubCallback(c *gin.Context) {
	session := sessions.Default(c)

	expectedState, _ := session.Get(oauthStateKey).(string)
	session.Delete(oauthStateKey)
	if err := session.Save(); err != nil {
		slog.Error("failed to save session", "error", err)
	}
	if expectedState == "" || c.Query("state") != expectedState {
		slog.Warn("oauth state mismatch on github callback")
		c.String(http.StatusBadRequest, "Invalid oauth state")
		return
	}

	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "could not find the code query parameter")
		return
	}

	token, err := oauthConfig().Exchange(c.Request.Context(), code)
	if err != nil {
		slog.Error("Failed to exchange oauth code", "error", err)
		c.String(http.StatusInternalServerError, "Failed to complete GitHub login")
		return
	}

	user, err := d.GithubService.CreateOrUpdateUser(c.Request.Context(), token.AccessToken)
	if err != nil {
		if errors.Is(err, services.ErrRateLimited) {
			c.Redirect(http.StatusFound, "/login_rate_limited")
			return
		}
		slog.Error("Failed to create or update user on login", "error", err)
		c.String(http.StatusInternalServerError, "Failed to complete GitHub login")
		return
	}

	session.Set(middleware.ACCESS_TOKEN_KEY, token.AccessToken)
	if err := session.Save(); err != nil {
		slog.Error("failed to save session", "error", err)
		c.String(http.StatusInternalServerError, "Failed to complete GitHub login")
		return
	}

	segment.IdentifyUser(user)
	slog.Info("User logged in", "userId", user.ID, "username", user.Username)
	c.Redirect(http.StatusFound, "/profile")
}

func (d GitReportsController) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		slog.Error("failed to save session", "error", err)
	}
	c.Redirect(http.StatusFound, "/")
}

// LoginRateLimited is shown when the rate-limit guard refuses a login-time
// identity refresh.
func LoginRateLimited(c *gin.Context) {
	c.HTML(http.StatusOK, "login_rate_limited.tmpl", gin.H{})
}
