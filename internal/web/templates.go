package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// HeadData is the data of the document head
type HeadData struct {
	Title string
}

// LandingPageData is the data of the landing page
type LandingPageData struct {
	Notification string
}

// UserPageData is the data of the home and onboarding pages
type UserPageData struct {
	Username string
}

var pageTitles = map[string]string{
	"/":           "Welcome",
	"/home":       "Home",
	"/onboarding": "Get started",
}
