package main

import (
	"embed"
	"fmt"

	"github.com/gitreportshq/gitreports/bootstrap"
	"github.com/gitreportshq/gitreports/config"
	"github.com/gitreportshq/gitreports/controllers"
	"github.com/gitreportshq/gitreports/segment"
	"github.com/gitreportshq/gitreports/services"
	"github.com/gitreportshq/gitreports/utils"
)

//go:embed templates
var templates embed.FS

func main() {
	controller := controllers.GitReportsController{
		GithubService: &services.GithubService{
			ClientProvider: &utils.GithubRealClientProvider{},
			Notifier: &services.EmailNotifier{
				Host:     config.SmtpHost(),
				Port:     config.SmtpPort(),
				From:     config.SmtpFrom(),
				Username: config.SmtpUsername(),
				Password: config.SmtpPassword(),
			},
		},
	}
	// flush buffered analytics events when the server stops
	defer segment.CloseClient()

	r := bootstrap.Bootstrap(templates, controller)
	port := config.GetPort()
	r.Run(fmt.Sprintf(":%d", port))
}
