package models

import (
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSuite(tb testing.TB) (func(tb testing.TB), *Database, *User) {
	log.Println("setup suite")

	// database file name
	dbName := "database_storage_test.db"

	// remove old database
	e := os.Remove(dbName)
	if e != nil {
		if !strings.Contains(e.Error(), "no such file or directory") {
			log.Fatal(e)
		}
	}

	// open and create a new database
	gdb, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}

	// migrate tables
	err = gdb.AutoMigrate(&User{}, &Organization{}, &Repository{}, &SyncStatus{})
	if err != nil {
		log.Fatal(err)
	}

	database := &Database{GormDB: gdb}
	DB = database

	user, err := database.GetOrCreateUser("test-access-token")
	if err != nil {
		log.Fatal(err)
	}

	// Return a function to teardown the test
	return func(tb testing.TB) {
		log.Println("teardown suite")
		err = os.Remove(dbName)
		if err != nil {
			log.Fatal(err)
		}
	}, database, user
}

func init() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	again, err := db.GetOrCreateUser("test-access-token")
	assert.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	other, err := db.GetOrCreateUser("another-token")
	assert.NoError(t, err)
	assert.NotEqual(t, user.ID, other.ID)
}

func TestGetUserByAccessTokenNotFound(t *testing.T) {
	teardownSuite, db, _ := setupSuite(t)
	defer teardownSuite(t)

	user, err := db.GetUserByAccessToken("no-such-token")
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestUpdateUserProfileOverwrites(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	err := db.UpdateUserProfile(user, "octocat", "The Octocat", "octo@example.com", "https://example.com/a.png")
	assert.NoError(t, err)

	err = db.UpdateUserProfile(user, "octocat", "Mona", "", "")
	assert.NoError(t, err)

	reloaded, err := db.GetUserByAccessToken("test-access-token")
	assert.NoError(t, err)
	assert.Equal(t, "Mona", reloaded.Name)
	assert.Equal(t, "", reloaded.Email)
}

func TestOrganizationMembership(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	acme, err := db.GetOrCreateOrganization("acme")
	assert.NoError(t, err)
	again, err := db.GetOrCreateOrganization("acme")
	assert.NoError(t, err)
	assert.Equal(t, acme.ID, again.ID)

	globex, err := db.GetOrCreateOrganization("globex")
	assert.NoError(t, err)

	assert.NoError(t, db.AddUserToOrganization(acme, user))
	assert.NoError(t, db.AddUserToOrganization(acme, user))
	assert.NoError(t, db.AddUserToOrganization(globex, user))

	orgs, err := db.ListUserOrganizations(user)
	assert.NoError(t, err)
	assert.Len(t, orgs, 2)

	// only acme is reconfirmed, globex membership goes
	err = db.RemoveUserFromOrganizationsExcept(user, []string{"acme"})
	assert.NoError(t, err)

	orgs, err = db.ListUserOrganizations(user)
	assert.NoError(t, err)
	assert.Len(t, orgs, 1)
	assert.Equal(t, "acme", orgs[0].Name)

	// the pruned organization row itself survives
	globexAgain, err := db.GetOrCreateOrganization("globex")
	assert.NoError(t, err)
	assert.Equal(t, globex.ID, globexAgain.ID)
}

func TestRemoveUserFromOrganizationsExceptEmptyList(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	acme, err := db.GetOrCreateOrganization("acme")
	assert.NoError(t, err)
	assert.NoError(t, db.AddUserToOrganization(acme, user))

	// no organization was confirmed, every membership goes
	err = db.RemoveUserFromOrganizationsExcept(user, nil)
	assert.NoError(t, err)

	orgs, err := db.ListUserOrganizations(user)
	assert.NoError(t, err)
	assert.Len(t, orgs, 0)
}

func TestCreateRepositoryStartsInactive(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	repo, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)
	assert.False(t, repo.IsActive)
	assert.Nil(t, repo.OrganizationID)

	count, err := db.CountRepositoryUsers(repo)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryLookupsAreScoped(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	acme, err := db.GetOrCreateOrganization("acme")
	assert.NoError(t, err)

	personal, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)
	orgRepo, err := db.CreateRepository(202, "anvils", "acme", acme, user)
	assert.NoError(t, err)

	found, err := db.GetUserRepositoryByGithubId(user, 101)
	assert.NoError(t, err)
	assert.Equal(t, personal.ID, found.ID)

	found, err = db.GetOrganizationRepositoryByGithubId(acme, 202)
	assert.NoError(t, err)
	assert.Equal(t, orgRepo.ID, found.ID)

	// a personal repository is invisible through the organization scope
	found, err = db.GetOrganizationRepositoryByGithubId(acme, 101)
	assert.NoError(t, err)
	assert.Nil(t, found)

	// an unassociated user sees nothing through the user scope
	stranger, err := db.GetOrCreateUser("stranger-token")
	assert.NoError(t, err)
	found, err = db.GetUserRepositoryByGithubId(stranger, 101)
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestAddUserToRepositoryIsIdempotent(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	repo, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)

	assert.NoError(t, db.AddUserToRepository(repo, user))
	assert.NoError(t, db.AddUserToRepository(repo, user))

	count, err := db.CountRepositoryUsers(repo)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCountRepositoryUsersSurfacesErrors(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	repo, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)

	count, err := db.CountRepositoryUsers(repo)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// a broken join table must not read as zero users
	assert.NoError(t, db.GormDB.Migrator().DropTable("user_repositories"))
	_, err = db.CountRepositoryUsers(repo)
	assert.Error(t, err)
}

func TestSetRepositoryOrganization(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	repo, err := db.CreateRepository(101, "anvils", "acme", nil, user)
	assert.NoError(t, err)
	assert.Nil(t, repo.OrganizationID)

	acme, err := db.GetOrCreateOrganization("acme")
	assert.NoError(t, err)
	assert.NoError(t, db.SetRepositoryOrganization(repo, acme))
	assert.NotNil(t, repo.OrganizationID)

	claimed, err := db.GetOrganizationRepositoryByGithubId(acme, 101)
	assert.NoError(t, err)
	assert.NotNil(t, claimed)
	assert.Equal(t, repo.ID, claimed.ID)
}

func TestRemoveUserFromRepository(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	repo, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)
	assert.NoError(t, db.SetRepositoryActive(repo, true))

	assert.NoError(t, db.RemoveUserFromRepository(repo, user))

	count, err := db.CountRepositoryUsers(repo)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// the row survives losing its last user
	survivor, err := db.GetRepositoryByGithubId(101)
	assert.NoError(t, err)
	assert.NotNil(t, survivor)

	ids, err := db.GetUserRepositoryGithubIds(user)
	assert.NoError(t, err)
	assert.Len(t, ids, 0)
}

func TestGetUserRepositoryGithubIds(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	_, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)
	_, err = db.CreateRepository(202, "anvils", "octocat", nil, user)
	assert.NoError(t, err)

	ids, err := db.GetUserRepositoryGithubIds(user)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []int64{101, 202}, ids)
}

func TestGetRepositoryByOwnerAndName(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	repo, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)

	found, err := db.GetRepositoryByOwnerAndName("octocat", "widgets")
	assert.NoError(t, err)
	assert.Equal(t, repo.ID, found.ID)

	found, err = db.GetRepositoryByOwnerAndName("octocat", "gadgets")
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestGetRepositoryOwnerPrefersOldestUser(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	repo, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)

	second, err := db.GetOrCreateUser("second-token")
	assert.NoError(t, err)
	assert.NoError(t, db.AddUserToRepository(repo, second))

	owner, err := db.GetRepositoryOwner(repo)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, owner.ID)

	// once the first user is gone the next one takes over
	assert.NoError(t, db.RemoveUserFromRepository(repo, user))
	owner, err = db.GetRepositoryOwner(repo)
	assert.NoError(t, err)
	assert.Equal(t, second.ID, owner.ID)
}

func TestUpdateRepositoryIssueSettings(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	repo, err := db.CreateRepository(101, "widgets", "octocat", nil, user)
	assert.NoError(t, err)

	err = db.UpdateRepositoryIssueSettings(repo, "Bug report", "bug, triage", "{details}")
	assert.NoError(t, err)

	reloaded, err := db.GetRepositoryByGithubId(101)
	assert.NoError(t, err)
	assert.Equal(t, "Bug report", reloaded.IssueName)
	assert.Equal(t, []string{"bug", "triage"}, reloaded.IssueLabels())
}

func TestSyncStatusLifecycle(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	none, err := db.GetLatestSyncStatus(user)
	assert.NoError(t, err)
	assert.Nil(t, none)

	status, err := db.StartSyncStatus(user)
	assert.NoError(t, err)
	assert.Equal(t, SyncRunning, status.State)
	assert.False(t, status.Finished())

	err = db.FinishSyncStatus(status, SyncDone, "2 repositories unlinked")
	assert.NoError(t, err)

	latest, err := db.GetLatestSyncStatus(user)
	assert.NoError(t, err)
	assert.Equal(t, SyncDone, latest.State)
	assert.True(t, latest.Finished())
}

func TestPurgeFinishedSyncStatuses(t *testing.T) {
	teardownSuite, db, user := setupSuite(t)
	defer teardownSuite(t)

	finished, err := db.StartSyncStatus(user)
	assert.NoError(t, err)
	assert.NoError(t, db.FinishSyncStatus(finished, SyncDone, ""))

	running, err := db.StartSyncStatus(user)
	assert.NoError(t, err)

	// age the finished row past the cutoff
	old := time.Now().Add(-48 * time.Hour)
	err = db.GormDB.Model(finished).Update("updated_at", old).Error
	assert.NoError(t, err)

	assert.NoError(t, db.PurgeFinishedSyncStatuses(24*time.Hour))

	var count int64
	assert.NoError(t, db.GormDB.Model(&SyncStatus{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	latest, err := db.GetLatestSyncStatus(user)
	assert.NoError(t, err)
	assert.Equal(t, running.ID, latest.ID)
}
