package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v61/github"
	"github.com/samber/lo"

	"github.com/gitreportshq/gitreports/models"
	"github.com/gitreportshq/gitreports/utils"
)

var (
	// ErrRateLimited propagates the gateway precondition failure: the remote
	// quota is below the safety threshold and no work has been started.
	ErrRateLimited = utils.ErrRateLimited

	// ErrUserNotFound means sync was requested before identity was
	// established, which is a sequencing bug in the caller.
	ErrUserNotFound = errors.New("no user exists for this access token")

	ErrRepositoryNotFound = errors.New("repository not found")
)

// GithubService keeps local users, organizations and repositories in step
// with what the GitHub API reports, and files issues on behalf of anonymous
// submitters.
type GithubService struct {
	ClientProvider utils.GithubClientProvider
	Notifier       Notifier
}

// CreateOrUpdateUser establishes local identity for an access token. The
// profile fields are overwritten with whatever GitHub currently reports,
// last write wins.
func (s *GithubService) CreateOrUpdateUser(ctx context.Context, accessToken string) (*models.User, error) {
	client, err := s.ClientProvider.Get(accessToken)
	if err != nil {
		return nil, err
	}
	if err := utils.CheckRateLimit(ctx, client); err != nil {
		return nil, err
	}

	remoteUser, _, err := client.Users.Get(ctx, "")
	if err != nil {
		slog.Error("Failed to fetch github profile", "error", err)
		return nil, fmt.Errorf("error fetching github user: %v", err)
	}

	user, err := models.DB.GetOrCreateUser(accessToken)
	if err != nil {
		return nil, err
	}
	err = models.DB.UpdateUserProfile(user, remoteUser.GetLogin(), remoteUser.GetName(), remoteUser.GetEmail(), remoteUser.GetAvatarURL())
	if err != nil {
		return nil, err
	}

	slog.Info("User identity refreshed", "userId", user.ID, "username", user.Username)
	return user, nil
}

// LoadRepositories recomputes the user's repository and organization
// memberships from the remote state. Memberships not reconfirmed by this
// pass are pruned; entities are never deleted. Returns the github ids of
// repositories the user lost access to.
func (s *GithubService) LoadRepositories(ctx context.Context, accessToken string) ([]int64, error) {
	user, err := models.DB.GetUserByAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	client, err := s.ClientProvider.Get(accessToken)
	if err != nil {
		return nil, err
	}
	if err := utils.CheckRateLimit(ctx, client); err != nil {
		return nil, err
	}

	// snapshot before admission, a repository created in this pass is not
	// a pruning candidate
	currentIds, err := models.DB.GetUserRepositoryGithubIds(user)
	if err != nil {
		return nil, err
	}

	personalRepos, err := utils.ListUserRepositories(ctx, client)
	if err != nil {
		return nil, err
	}
	orgs, err := utils.ListUserOrganizations(ctx, client)
	if err != nil {
		return nil, err
	}

	foundPersonalIds, err := s.admitRepositories(personalRepos, user, nil)
	if err != nil {
		return nil, err
	}

	foundOrgRepoIds, foundOrgNames, err := s.admitOrganizations(ctx, client, orgs, user)
	if err != nil {
		return nil, err
	}

	if err := models.DB.RemoveUserFromOrganizationsExcept(user, foundOrgNames); err != nil {
		return nil, err
	}

	foundIds := append(foundPersonalIds, foundOrgRepoIds...)
	outdatedIds := lo.Without(currentIds, foundIds...)

	if err := s.removeOutdated(user, outdatedIds); err != nil {
		return nil, err
	}

	slog.Info("Repositories synced",
		"userId", user.ID,
		"found", len(foundIds),
		"outdated", len(outdatedIds))
	return outdatedIds, nil
}

// admitRepositories filters remote repositories by issue tracking and
// creates or updates the corresponding local rows. It is applied once for
// the user's personal repositories (org == nil) and once per organization.
// The returned ids cover only repositories that already existed locally; a
// repository created in this pass cannot be outdated yet, so it is left out.
func (s *GithubService) admitRepositories(apiRepos []*github.Repository, user *models.User, org *models.Organization) ([]int64, error) {
	foundIds := make([]int64, 0, len(apiRepos))
	for _, apiRepo := range apiRepos {
		if !apiRepo.GetHasIssues() {
			continue
		}

		var repo *models.Repository
		var err error
		if org != nil {
			repo, err = models.DB.GetOrganizationRepositoryByGithubId(org, apiRepo.GetID())
		} else {
			repo, err = models.DB.GetUserRepositoryByGithubId(user, apiRepo.GetID())
		}
		if err != nil {
			return nil, err
		}

		// github_id is globally unique, so a repository another user or an
		// earlier admission pass has already recorded must be reused rather
		// than recreated. The org pass also claims rows the personal pass
		// created without an organization.
		if repo == nil {
			repo, err = models.DB.GetRepositoryByGithubId(apiRepo.GetID())
			if err != nil {
				return nil, err
			}
			if repo != nil && org != nil && repo.OrganizationID == nil {
				if err := models.DB.SetRepositoryOrganization(repo, org); err != nil {
					return nil, err
				}
			}
		}

		if repo != nil {
			if err := models.DB.UpdateRepositoryDetails(repo, apiRepo.GetName(), apiRepo.GetOwner().GetLogin()); err != nil {
				return nil, err
			}
			if err := models.DB.AddUserToRepository(repo, user); err != nil {
				return nil, err
			}
			foundIds = append(foundIds, apiRepo.GetID())
			continue
		}

		_, err = models.DB.CreateRepository(apiRepo.GetID(), apiRepo.GetName(), apiRepo.GetOwner().GetLogin(), org, user)
		if err != nil {
			return nil, err
		}
	}
	return foundIds, nil
}

// admitOrganizations upserts each remote organization, attaches the user,
// and admits the organization's repositories through the same routine used
// for personal repositories.
func (s *GithubService) admitOrganizations(ctx context.Context, client *github.Client, apiOrgs []*github.Organization, user *models.User) ([]int64, []string, error) {
	foundIds := make([]int64, 0)
	foundNames := make([]string, 0, len(apiOrgs))

	for _, apiOrg := range apiOrgs {
		org, err := models.DB.GetOrCreateOrganization(apiOrg.GetLogin())
		if err != nil {
			return nil, nil, err
		}
		if err := models.DB.AddUserToOrganization(org, user); err != nil {
			return nil, nil, err
		}

		orgRepos, err := utils.ListOrganizationRepositories(ctx, client, org.Name)
		if err != nil {
			return nil, nil, err
		}
		ids, err := s.admitRepositories(orgRepos, user, org)
		if err != nil {
			return nil, nil, err
		}

		foundIds = append(foundIds, ids...)
		foundNames = append(foundNames, org.Name)
	}
	return foundIds, foundNames, nil
}

// removeOutdated revokes the user's association with every repository not
// reconfirmed in this pass. A repository left with no users is deactivated;
// the row itself stays.
func (s *GithubService) removeOutdated(user *models.User, outdatedIds []int64) error {
	for _, githubId := range outdatedIds {
		repo, err := models.DB.GetRepositoryByGithubId(githubId)
		if err != nil {
			return err
		}
		if repo == nil {
			continue
		}
		if err := models.DB.RemoveUserFromRepository(repo, user); err != nil {
			return err
		}
		count, err := models.DB.CountRepositoryUsers(repo)
		if err != nil {
			return err
		}
		if count == 0 {
			if err := models.DB.SetRepositoryActive(repo, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// SubmitIssue files an issue against the repository's remote counterpart
// using the owning user's token; submitters have no credential of their own.
// No local state is written.
func (s *GithubService) SubmitIssue(ctx context.Context, repoId uint, submitterName string, email string, details string) (*github.Issue, error) {
	repo, err := models.DB.GetRepositoryById(repoId)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, ErrRepositoryNotFound
	}

	owner, err := models.DB.GetRepositoryOwner(repo)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("repository %v has no owning user to submit with", repo.ID)
	}

	client, err := s.ClientProvider.Get(owner.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := utils.CheckRateLimit(ctx, client); err != nil {
		return nil, err
	}

	title := repo.IssueTitle()
	body := repo.ConstructIssueBody(submitterName, email, details)
	request := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	}
	if labels := repo.IssueLabels(); len(labels) > 0 {
		request.Labels = &labels
	}

	issue, _, err := client.Issues.Create(ctx, repo.OwnerLogin, repo.Name, request)
	if err != nil {
		slog.Error("Failed to create github issue",
			"repoId", repo.ID,
			"repo", repo.FullName(),
			"error", err)
		return nil, fmt.Errorf("error creating issue on %v: %v", repo.FullName(), err)
	}

	slog.Info("Issue submitted",
		"repoId", repo.ID,
		"repo", repo.FullName(),
		"issueNumber", issue.GetNumber())

	if s.Notifier != nil {
		s.Notifier.IssueSubmitted(repo.ID, issue.GetNumber())
	}

	return issue, nil
}

// StartBackgroundSync runs LoadRepositories in a goroutine tracked by a
// SyncStatus row. An unfinished row acts as the per-user guard against
// concurrent syncs; the engine itself does not lock.
func (s *GithubService) StartBackgroundSync(user *models.User) (*models.SyncStatus, error) {
	existing, err := models.DB.GetLatestSyncStatus(user)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Finished() {
		slog.Debug("sync already in progress", "userId", user.ID, "statusId", existing.ID)
		return existing, nil
	}

	status, err := models.DB.StartSyncStatus(user)
	if err != nil {
		return nil, err
	}

	accessToken := user.AccessToken
	go func() {
		outdated, err := s.LoadRepositories(context.Background(), accessToken)
		switch {
		case errors.Is(err, ErrRateLimited):
			models.DB.FinishSyncStatus(status, models.SyncRateLimited, "GitHub rate limit reached, try again later")
		case err != nil:
			slog.Error("Background sync failed", "userId", user.ID, "error", err)
			models.DB.FinishSyncStatus(status, models.SyncFailed, err.Error())
		default:
			models.DB.FinishSyncStatus(status, models.SyncDone, fmt.Sprintf("%d repositories unlinked", len(outdated)))
		}
	}()

	return status, nil
}
