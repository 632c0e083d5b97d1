package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	net "net/http"

	"github.com/google/go-github/v61/github"
	"golang.org/x/oauth2"
)

// MinRemainingRate is the safety threshold for remote API calls. Operations
// refuse to start a batch of calls with fewer calls than this left in the
// quota.
const MinRemainingRate = 10

var ErrRateLimited = errors.New("github rate limit remaining below safety threshold")

// just a wrapper around the github client to be able to use mocks
type GithubRealClientProvider struct {
}

type GithubClientMockProvider struct {
	MockedHTTPClient *net.Client
}

type GithubClientProvider interface {
	Get(accessToken string) (*github.Client, error)
}

func (gh *GithubRealClientProvider) Get(accessToken string) (*github.Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("cannot create github client without an access token")
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: accessToken},
	)
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Transport = &LoggingRoundTripper{Rt: httpClient.Transport}
	return github.NewClient(httpClient), nil
}

func (gh *GithubClientMockProvider) Get(accessToken string) (*github.Client, error) {
	return github.NewClient(gh.MockedHTTPClient), nil
}

// CheckRateLimit is the precondition guard run before any batch of remote
// calls. It is stateless; every entry point re-checks independently.
func CheckRateLimit(ctx context.Context, client *github.Client) error {
	limits, _, err := client.RateLimit.Get(ctx)
	if err != nil {
		slog.Error("Failed to query github rate limit", "error", err)
		return fmt.Errorf("error fetching github rate limit: %v", err)
	}
	remaining := limits.GetCore().Remaining
	slog.Debug("Checked github rate limit", "remaining", remaining, "threshold", MinRemainingRate)
	if remaining < MinRemainingRate {
		slog.Warn("GitHub rate limit below safety threshold", "remaining", remaining)
		return ErrRateLimited
	}
	return nil
}

// ListUserRepositories fetches every repository the token's user has access
// to, following pagination to the end.
func ListUserRepositories(ctx context.Context, client *github.Client) ([]*github.Repository, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var allRepos []*github.Repository
	for {
		repos, resp, err := client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("error listing user repositories: %v", err)
		}
		allRepos = append(allRepos, repos...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	slog.Debug("Listed user repositories", "count", len(allRepos))
	return allRepos, nil
}

// ListUserOrganizations fetches the organizations of the token's user,
// following pagination to the end.
func ListUserOrganizations(ctx context.Context, client *github.Client) ([]*github.Organization, error) {
	opts := &github.ListOptions{PerPage: 100}
	var allOrgs []*github.Organization
	for {
		orgs, resp, err := client.Organizations.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("error listing user organizations: %v", err)
		}
		allOrgs = append(allOrgs, orgs...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	slog.Debug("Listed user organizations", "count", len(allOrgs))
	return allOrgs, nil
}

// ListOrganizationRepositories fetches the repositories owned by an
// organization, following pagination to the end.
func ListOrganizationRepositories(ctx context.Context, client *github.Client, org string) ([]*github.Repository, error) {
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var allRepos []*github.Repository
	for {
		repos, resp, err := client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("error listing repositories for org %v: %v", org, err)
		}
		allRepos = append(allRepos, repos...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	slog.Debug("Listed organization repositories", "org", org, "count", len(allRepos))
	return allRepos, nil
}
