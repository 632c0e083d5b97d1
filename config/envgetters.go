package config

import (
	"os"

	"github.com/spf13/cast"
)

func GetPort() int {
	if port := os.Getenv("PORT"); port != "" {
		return cast.ToInt(port)
	}
	return AppConfig.GetInt("port")
}

func GetBaseUrl() string {
	if url := os.Getenv("BASE_URL"); url != "" {
		return url
	}
	return AppConfig.GetString("base_url")
}

// GithubClientId is the OAuth app client id used for the login flow.
func GithubClientId() string {
	return os.Getenv("GITHUB_CLIENT_ID")
}

func GithubClientSecret() string {
	return os.Getenv("GITHUB_CLIENT_SECRET")
}

func SessionSecret() string {
	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		return secret
	}
	return "gitreports-dev-secret"
}

func SmtpHost() string {
	return os.Getenv("SMTP_HOST")
}

func SmtpPort() int {
	if port := os.Getenv("SMTP_PORT"); port != "" {
		return cast.ToInt(port)
	}
	return 587
}

func SmtpFrom() string {
	if from := os.Getenv("SMTP_FROM"); from != "" {
		return from
	}
	return "notifications@gitreports.com"
}

func SmtpUsername() string {
	return os.Getenv("SMTP_USERNAME")
}

func SmtpPassword() string {
	return os.Getenv("SMTP_PASSWORD")
}
