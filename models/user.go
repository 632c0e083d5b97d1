package models

import "gorm.io/gorm"

type User struct {
	gorm.Model
	// the GitHub OAuth token this user logged in with; acts as the lookup key
	AccessToken   string `gorm:"uniqueIndex:idx_user_access_token"`
	Username      string `gorm:"index:idx_user_username"`
	Name          string
	Email         string
	AvatarUrl     string
	Repositories  []Repository   `gorm:"many2many:user_repositories;"`
	Organizations []Organization `gorm:"many2many:user_organizations;"`
}
