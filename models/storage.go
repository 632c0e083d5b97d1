package models

import (
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

func (db *Database) GetUserByAccessToken(accessToken string) (*User, error) {
	user := &User{}
	result := db.GormDB.Take(user, "access_token = ?", accessToken)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			slog.Debug("user not found for access token")
			return nil, nil
		}
		slog.Error("error fetching user by access token", "error", result.Error)
		return nil, result.Error
	}
	slog.Debug("fetched user by access token", "userId", user.ID)
	return user, nil
}

// GetOrCreateUser upserts a user keyed by their access token. The token is
// the natural key, so two logins with the same token resolve to one row.
func (db *Database) GetOrCreateUser(accessToken string) (*User, error) {
	user := &User{}
	result := db.GormDB.Where(User{AccessToken: accessToken}).FirstOrCreate(user)
	if result.Error != nil {
		slog.Error("failed to get or create user", "error", result.Error)
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		slog.Info("user created", "userId", user.ID)
	}
	return user, nil
}

func (db *Database) UpdateUserProfile(user *User, username string, name string, email string, avatarUrl string) error {
	err := db.GormDB.Model(user).Updates(map[string]interface{}{
		"username":   username,
		"name":       name,
		"email":      email,
		"avatar_url": avatarUrl,
	}).Error
	if err != nil {
		slog.Error("failed to update user profile",
			"userId", user.ID,
			"username", username,
			"error", err)
		return err
	}
	slog.Info("user profile updated", "userId", user.ID, "username", username)
	return nil
}

// GetOrCreateOrganization upserts an organization by its login name.
// Organizations are additive only, nothing ever deletes them.
func (db *Database) GetOrCreateOrganization(name string) (*Organization, error) {
	org := &Organization{}
	result := db.GormDB.Where(Organization{Name: name}).FirstOrCreate(org)
	if result.Error != nil {
		slog.Error("failed to get or create organization", "name", name, "error", result.Error)
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		slog.Info("organization created", "orgId", org.ID, "name", name)
	}
	return org, nil
}

func (db *Database) AddUserToOrganization(org *Organization, user *User) error {
	err := db.GormDB.Model(user).Association("Organizations").Append(org)
	if err != nil {
		slog.Error("failed to add user to organization",
			"userId", user.ID,
			"orgId", org.ID,
			"error", err)
		return err
	}
	slog.Debug("user added to organization", "userId", user.ID, "orgId", org.ID, "orgName", org.Name)
	return nil
}

// RemoveUserFromOrganizationsExcept drops the user's membership in every
// organization whose name was not confirmed by the latest sync. Organization
// rows themselves are left in place.
func (db *Database) RemoveUserFromOrganizationsExcept(user *User, confirmedNames []string) error {
	var orgs []Organization
	query := db.GormDB
	if len(confirmedNames) > 0 {
		query = query.Where("name NOT IN ?", confirmedNames)
	}
	if err := query.Find(&orgs).Error; err != nil {
		slog.Error("error fetching organizations for pruning", "userId", user.ID, "error", err)
		return err
	}
	if len(orgs) == 0 {
		return nil
	}
	err := db.GormDB.Model(user).Association("Organizations").Delete(&orgs)
	if err != nil {
		slog.Error("failed to prune organization memberships",
			"userId", user.ID,
			"count", len(orgs),
			"error", err)
		return err
	}
	slog.Info("pruned organization memberships", "userId", user.ID, "prunedAgainst", len(orgs))
	return nil
}

func (db *Database) ListUserOrganizations(user *User) ([]Organization, error) {
	var orgs []Organization
	err := db.GormDB.Model(user).Association("Organizations").Find(&orgs)
	if err != nil {
		slog.Error("error fetching user organizations", "userId", user.ID, "error", err)
		return nil, err
	}
	return orgs, nil
}

// GetUserRepositoryByGithubId resolves a repository within the set currently
// associated with the user. Used for admission of personal repositories.
func (db *Database) GetUserRepositoryByGithubId(user *User, githubId int64) (*Repository, error) {
	repo := &Repository{}
	result := db.GormDB.
		Joins("INNER JOIN user_repositories ON user_repositories.repository_id = repositories.id").
		Where("user_repositories.user_id = ? AND repositories.github_id = ?", user.ID, githubId).
		Take(repo)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("error fetching user repository",
			"userId", user.ID,
			"githubId", githubId,
			"error", result.Error)
		return nil, result.Error
	}
	return repo, nil
}

// GetOrganizationRepositoryByGithubId resolves a repository within the set
// owned by the organization. Used for admission of organization repositories.
func (db *Database) GetOrganizationRepositoryByGithubId(org *Organization, githubId int64) (*Repository, error) {
	repo := &Repository{}
	result := db.GormDB.
		Where("organization_id = ? AND github_id = ?", org.ID, githubId).
		Take(repo)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("error fetching organization repository",
			"orgId", org.ID,
			"githubId", githubId,
			"error", result.Error)
		return nil, result.Error
	}
	return repo, nil
}

// CreateRepository records a newly sighted remote repository. It starts out
// inactive and associated only with the syncing user; org is nil for
// personal repositories.
func (db *Database) CreateRepository(githubId int64, name string, ownerLogin string, org *Organization, user *User) (*Repository, error) {
	repo := &Repository{
		GithubId:     githubId,
		Name:         name,
		OwnerLogin:   ownerLogin,
		IsActive:     false,
		Organization: org,
		Users:        []User{*user},
	}
	result := db.GormDB.Create(repo)
	if result.Error != nil {
		slog.Error("failed to create repository",
			"githubId", githubId,
			"name", name,
			"ownerLogin", ownerLogin,
			"error", result.Error)
		return nil, result.Error
	}
	slog.Info("repository created",
		slog.Group("repository",
			"id", repo.ID,
			"githubId", githubId,
			"name", name,
			"ownerLogin", ownerLogin))
	return repo, nil
}

func (db *Database) UpdateRepositoryDetails(repo *Repository, name string, ownerLogin string) error {
	err := db.GormDB.Model(repo).Updates(map[string]interface{}{
		"name":        name,
		"owner_login": ownerLogin,
	}).Error
	if err != nil {
		slog.Error("failed to update repository details",
			"repoId", repo.ID,
			"githubId", repo.GithubId,
			"error", err)
		return err
	}
	return nil
}

// SetRepositoryOrganization claims a repository for an organization. Used
// when a row first sighted as personal turns out to be org-owned.
func (db *Database) SetRepositoryOrganization(repo *Repository, org *Organization) error {
	err := db.GormDB.Model(repo).Update("organization_id", org.ID).Error
	if err != nil {
		slog.Error("failed to set repository organization",
			"repoId", repo.ID,
			"orgId", org.ID,
			"error", err)
		return err
	}
	repo.OrganizationID = &org.ID
	slog.Info("repository claimed by organization", "repoId", repo.ID, "orgId", org.ID, "orgName", org.Name)
	return nil
}

func (db *Database) UpdateRepositoryIssueSettings(repo *Repository, issueName string, labels string, issueTemplate string) error {
	err := db.GormDB.Model(repo).Updates(map[string]interface{}{
		"issue_name":     issueName,
		"labels":         labels,
		"issue_template": issueTemplate,
	}).Error
	if err != nil {
		slog.Error("failed to update repository issue settings", "repoId", repo.ID, "error", err)
		return err
	}
	slog.Info("repository issue settings updated", "repoId", repo.ID)
	return nil
}

func (db *Database) AddUserToRepository(repo *Repository, user *User) error {
	err := db.GormDB.Model(repo).Association("Users").Append(user)
	if err != nil {
		slog.Error("failed to add user to repository",
			"userId", user.ID,
			"repoId", repo.ID,
			"error", err)
		return err
	}
	slog.Debug("user added to repository", "userId", user.ID, "repoId", repo.ID, "githubId", repo.GithubId)
	return nil
}

func (db *Database) RemoveUserFromRepository(repo *Repository, user *User) error {
	err := db.GormDB.Model(repo).Association("Users").Delete(user)
	if err != nil {
		slog.Error("failed to remove user from repository",
			"userId", user.ID,
			"repoId", repo.ID,
			"error", err)
		return err
	}
	slog.Info("user removed from repository", "userId", user.ID, "repoId", repo.ID, "githubId", repo.GithubId)
	return nil
}

func (db *Database) CountRepositoryUsers(repo *Repository) (int64, error) {
	assoc := db.GormDB.Model(repo).Association("Users")
	count := assoc.Count()
	if assoc.Error != nil {
		slog.Error("failed to count repository users", "repoId", repo.ID, "error", assoc.Error)
		return 0, assoc.Error
	}
	return count, nil
}

// GetUserRepositoryGithubIds returns the remote ids of every repository the
// user is currently associated with.
func (db *Database) GetUserRepositoryGithubIds(user *User) ([]int64, error) {
	var ids []int64
	err := db.GormDB.Model(&Repository{}).
		Joins("INNER JOIN user_repositories ON user_repositories.repository_id = repositories.id").
		Where("user_repositories.user_id = ?", user.ID).
		Pluck("repositories.github_id", &ids).Error
	if err != nil {
		slog.Error("error fetching user repository ids", "userId", user.ID, "error", err)
		return nil, err
	}
	return ids, nil
}

func (db *Database) ListUserRepositories(user *User) ([]Repository, error) {
	var repos []Repository
	err := db.GormDB.Preload("Organization").
		Joins("INNER JOIN user_repositories ON user_repositories.repository_id = repositories.id").
		Where("user_repositories.user_id = ?", user.ID).
		Order("repositories.owner_login, repositories.name").
		Find(&repos).Error
	if err != nil {
		slog.Error("error fetching user repositories", "userId", user.ID, "error", err)
		return nil, err
	}
	slog.Debug("fetched user repositories", "userId", user.ID, "count", len(repos))
	return repos, nil
}

func (db *Database) GetRepositoryById(repoId any) (*Repository, error) {
	repo := &Repository{}
	result := db.GormDB.Preload("Organization").Take(repo, "id = ?", repoId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			slog.Debug("repository not found", "repoId", repoId)
			return nil, nil
		}
		slog.Error("error fetching repository", "repoId", repoId, "error", result.Error)
		return nil, result.Error
	}
	return repo, nil
}

func (db *Database) GetRepositoryByGithubId(githubId int64) (*Repository, error) {
	repo := &Repository{}
	result := db.GormDB.Take(repo, "github_id = ?", githubId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			slog.Debug("repository not found", "githubId", githubId)
			return nil, nil
		}
		slog.Error("error fetching repository", "githubId", githubId, "error", result.Error)
		return nil, result.Error
	}
	return repo, nil
}

func (db *Database) GetRepositoryByOwnerAndName(ownerLogin string, name string) (*Repository, error) {
	repo := &Repository{}
	result := db.GormDB.Take(repo, "owner_login = ? AND name = ?", ownerLogin, name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			slog.Debug("repository not found", "owner", ownerLogin, "name", name)
			return nil, nil
		}
		slog.Error("error fetching repository", "owner", ownerLogin, "name", name, "error", result.Error)
		return nil, result.Error
	}
	return repo, nil
}

// GetRepositoryOwner returns the longest-standing user still associated with
// the repository; their token is the one issues get filed with.
func (db *Database) GetRepositoryOwner(repo *Repository) (*User, error) {
	user := &User{}
	result := db.GormDB.
		Joins("INNER JOIN user_repositories ON user_repositories.user_id = users.id").
		Where("user_repositories.repository_id = ?", repo.ID).
		Order("users.id").
		Take(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			slog.Warn("repository has no associated users", "repoId", repo.ID)
			return nil, nil
		}
		slog.Error("error fetching repository owner", "repoId", repo.ID, "error", result.Error)
		return nil, result.Error
	}
	return user, nil
}

func (db *Database) SetRepositoryActive(repo *Repository, active bool) error {
	err := db.GormDB.Model(repo).Update("is_active", active).Error
	if err != nil {
		slog.Error("failed to update repository active flag",
			"repoId", repo.ID,
			"active", active,
			"error", err)
		return err
	}
	slog.Info("repository active flag updated", "repoId", repo.ID, "githubId", repo.GithubId, "active", active)
	return nil
}

func (db *Database) StartSyncStatus(user *User) (*SyncStatus, error) {
	status := &SyncStatus{UserID: user.ID, State: SyncRunning}
	result := db.GormDB.Create(status)
	if result.Error != nil {
		slog.Error("failed to create sync status", "userId", user.ID, "error", result.Error)
		return nil, result.Error
	}
	slog.Debug("sync status created", "userId", user.ID, "statusId", status.ID)
	return status, nil
}

func (db *Database) FinishSyncStatus(status *SyncStatus, state SyncState, detail string) error {
	err := db.GormDB.Model(status).Updates(map[string]interface{}{
		"state":  state,
		"detail": detail,
	}).Error
	if err != nil {
		slog.Error("failed to update sync status", "statusId", status.ID, "error", err)
		return err
	}
	slog.Debug("sync status updated", "statusId", status.ID, "state", state)
	return nil
}

func (db *Database) GetLatestSyncStatus(user *User) (*SyncStatus, error) {
	status := &SyncStatus{}
	result := db.GormDB.Where("user_id = ?", user.ID).Order("created_at DESC").Take(status)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("error fetching sync status", "userId", user.ID, "error", result.Error)
		return nil, result.Error
	}
	return status, nil
}

// PurgeFinishedSyncStatuses hard-deletes finished sync rows older than the
// given age. Called from the housekeeping cron.
func (db *Database) PurgeFinishedSyncStatuses(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	result := db.GormDB.Unscoped().
		Where("state IN ? AND updated_at < ?", []SyncState{SyncDone, SyncFailed, SyncRateLimited}, cutoff).
		Delete(&SyncStatus{})
	if result.Error != nil {
		slog.Error("failed to purge sync statuses", "error", result.Error)
		return result.Error
	}
	if result.RowsAffected > 0 {
		slog.Info("purged finished sync statuses", "rowsAffected", result.RowsAffected)
	}
	return nil
}
