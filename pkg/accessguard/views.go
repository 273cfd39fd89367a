package accessguard

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/httputil"
)

// DefaultRefreshInterval is how soon the loading view asks the browser to retry
const DefaultRefreshInterval = time.Second

var panelTemplate = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title>{{if .Refresh}}<meta http-equiv="refresh" content="{{.Refresh}}">{{end}}</head>
<body>
<section class="panel {{.Class}}">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</section>
</body>
</html>
`))

type panel struct {
	Title   string
	Message string
	Class   string
	Refresh int
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func renderPanel(w http.ResponseWriter, status int, p panel) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = panelTemplate.Execute(w, p)
}

// AccessDeniedHandler serves the default denial panel, or a JSON error for API
// clients.
func AccessDeniedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantsJSON(r) {
			httputil.WriteForbidden(w, "access denied")
			return
		}
		renderPanel(w, http.StatusForbidden, panel{
			Title:   "Access denied",
			Message: "You do not have permission to view this page.",
			Class:   "denied",
		})
	})
}

// LoadingHandler serves a 202 asking the client to retry after refresh
func LoadingHandler(refresh time.Duration) http.Handler {
	seconds := int(refresh.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		if wantsJSON(r) {
			_ = httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"loading": true})
			return
		}
		renderPanel(w, http.StatusAccepted, panel{
			Title:   "Loading",
			Message: "Checking your permissions.",
			Class:   "loading",
			Refresh: seconds,
		})
	})
}
