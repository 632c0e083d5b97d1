package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type Organization struct {
	gorm.Model
	Name         string `gorm:"uniqueIndex:idx_organization_name"`
	Users        []User `gorm:"many2many:user_organizations;"`
	Repositories []Repository
}

const DefaultIssueTitle = "Git Reports Issue"

type Repository struct {
	gorm.Model
	// remote repository id, unique across the whole of GitHub
	GithubId       int64  `gorm:"uniqueIndex:idx_repository_github_id"`
	Name           string `gorm:"index:idx_repository_name"`
	OwnerLogin     string `gorm:"index:idx_repository_owner"`
	IsActive       bool
	IssueName      string
	Labels         string
	IssueTemplate  string
	OrganizationID *uint
	Organization   *Organization
	Users          []User `gorm:"many2many:user_repositories;"`
}

func (r *Repository) FullName() string {
	return r.OwnerLogin + "/" + r.Name
}

// IssueTitle returns the configured title for submitted issues, falling back
// to the fixed default when none is set.
func (r *Repository) IssueTitle() string {
	if r.IssueName != "" {
		return r.IssueName
	}
	return DefaultIssueTitle
}

// IssueLabels splits the stored comma-separated label list. An empty list
// means issues are filed without labels.
func (r *Repository) IssueLabels() []string {
	if strings.TrimSpace(r.Labels) == "" {
		return nil
	}
	parts := strings.Split(r.Labels, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	return labels
}

// ConstructIssueBody interpolates the submitter's details into the
// repository's issue template. Repositories without a template get the
// default layout.
func (r *Repository) ConstructIssueBody(submitterName string, email string, details string) string {
	if r.IssueTemplate != "" {
		body := r.IssueTemplate
		body = strings.ReplaceAll(body, "{name}", submitterName)
		body = strings.ReplaceAll(body, "{email}", email)
		body = strings.ReplaceAll(body, "{details}", details)
		return body
	}
	return fmt.Sprintf("Submitted by: %s\nEmail: %s\n\n%s", submitterName, email, details)
}

func (r *Repository) MapToJsonStruct() interface{} {
	organizationName := func() string {
		if r.Organization == nil {
			return ""
		}
		return r.Organization.Name
	}
	return struct {
		Id               uint   `json:"id"`
		GithubId         int64  `json:"github_id"`
		Name             string `json:"name"`
		FullName         string `json:"full_name"`
		OwnerLogin       string `json:"owner_login"`
		IsActive         bool   `json:"is_active"`
		OrganizationName string `json:"organization_name"`
	}{
		Id:               r.ID,
		GithubId:         r.GithubId,
		Name:             r.Name,
		FullName:         r.FullName(),
		OwnerLogin:       r.OwnerLogin,
		IsActive:         r.IsActive,
		OrganizationName: organizationName(),
	}
}
