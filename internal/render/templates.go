package render

import "html/template"

// Every patch fragment is a self-contained "div#app" element carrying its
// own data-page attribute, plus data-css for the pages that have their own
// stylesheet (settings, service), per spec §6 and
// original_source/crates/view/src/{settings_page,service_page,not_found}.rs.
// Full-page templates wrap the same fragment in a document shell, matching
// how the originals share markup between the two modes.

const landingAppFragment = `<div id="app" data-page="landing">
  <h1>Axe4</h1>
  <p>Services</p>
  <ul id="services">
    {{range .Services}}<li class="item"><button>{{.}}</button></li>
    {{end}}
  </ul>
</div>`

const landingFullDocument = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Axe</title>
  <meta name="app-version" content="{{.AppVersion}}">
  <link rel="stylesheet" href="/static/animation.css">
</head>
<body>
` + landingAppFragment + `
</body>
</html>`

const settingsAppFragment = `<div id="app" data-page="settings" data-css="/static/settings_page.css">
  <h1>settings</h1>
  <h2>Services</h2>
  <ul>
    {{range .Services}}<li>{{.}}</li>
    {{end}}
  </ul>
  <h2>Nodes</h2>
  <div id="messages">
    {{range .Nodes}}<div class="item"><div>{{.Name}}</div><div>{{.HostName}}</div></div>
    {{end}}
  </div>
  <h2>CI Nodes</h2>
  <div class="ci">
    {{range .CINodes}}<div class="item">{{.}}</div>
    {{end}}
  </div>
  <h2>Environments</h2>
  <div class="env">
    {{range .Environments}}<div class="item">{{.Name}}<br><br>
      {{range .Nodes}}<div>nodes:</div><div class="item">{{.}}</div>
      {{end}}
    </div>
    {{end}}
  </div>
</div>`

const settingsFullDocument = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Axe</title>
  <meta name="app-version" content="{{.AppVersion}}">
  <link rel="stylesheet" href="/static/settings_page.css">
  <link rel="stylesheet" href="/static/animation.css">
</head>
<body data-page="settings">
` + settingsAppFragment + `
</body>
</html>`

const serviceAppFragment = `<div id="app" data-page="service" data-css="/static/service_page.css">
  <h1>Service {{.ServiceName}}</h1>
  <h2>Messages on 'demo'</h2>
  <ul id="messages"></ul>
</div>`

const serviceFullDocument = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Axe</title>
  <meta name="app-version" content="{{.AppVersion}}">
  <link rel="stylesheet" href="/static/animation.css">
  <link rel="stylesheet" href="/static/service_page.css">
</head>
<body data-page="service">
` + serviceAppFragment + `
</body>
</html>`

const notFoundAppFragment = `<div id="app" data-page="not-found">
  <h1>Oops!</h1>
  <p>couldn't help you with that</p>
</div>`

const notFoundFullDocument = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Hello!</title>
</head>
<body data-page="not-found">
` + notFoundAppFragment + `
</body>
</html>`

const searchResultsFragment = `<ul id="services">
  {{range .}}<li class="item"><button>{{.}}</button></li>
  {{end}}
</ul>`

func must(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

var (
	landingPage = page{
		full:  must("landing-full", landingFullDocument),
		patch: must("landing-patch", landingAppFragment),
	}
	settingsPage = page{
		full:  must("settings-full", settingsFullDocument),
		patch: must("settings-patch", settingsAppFragment),
	}
	servicePage = page{
		full:  must("service-full", serviceFullDocument),
		patch: must("service-patch", serviceAppFragment),
	}
	notFoundPage = page{
		full:  must("not-found-full", notFoundFullDocument),
		patch: must("not-found-patch", notFoundAppFragment),
	}
	searchResultsTmpl = must("search-results", searchResultsFragment)
)
