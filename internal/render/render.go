// Package render is the navigation collaborator of spec §6: a pure
// function from (path, query, config, mode) to a NavResult, grounded on
// original_source/crates/view's maud templates and re-expressed with
// html/template for safe interpolation of config-driven and user-supplied
// values (service names, query values).
package render

import (
	"bytes"
	"html/template"

	"github.com/jeremiahvaughan/pipeline/internal/config"
	"github.com/jeremiahvaughan/pipeline/internal/event/fuzzy"
)

// Mode selects whether Render returns a full document or an in-page patch.
type Mode int

const (
	FullPage Mode = iota
	Patch
)

// ResultKind tags a Result variant.
type ResultKind int

const (
	KindFullHTML ResultKind = iota
	KindPatch
	KindNotFound
	KindRedirect
)

// Result is the render collaborator's return value, spec.md's NavResult.
type Result struct {
	Kind     ResultKind
	HTML     string
	Location string
}

// page bundles a route's full-document and in-page-patch templates.
type page struct {
	full  *template.Template
	patch *template.Template
}

// Render routes path to the matching page template, per spec §6's table:
// "/" landing, "/settings" settings, "/service" service (reads "name" from
// query), anything else NotFound.
func Render(path string, query map[string]string, cfg *config.Config, mode Mode) Result {
	switch path {
	case "/":
		return renderPage(landingPage, landingData(cfg), mode)
	case "/settings":
		return renderPage(settingsPage, settingsData(cfg), mode)
	case "/service":
		name := query["name"]
		if name == "" {
			name = "unknown"
		}
		return renderPage(servicePage, serviceData(cfg, name), mode)
	default:
		return renderNotFound(mode)
	}
}

func renderPage(p page, data any, mode Mode) Result {
	var buf bytes.Buffer
	if mode == Patch {
		if err := p.patch.Execute(&buf, data); err != nil {
			return renderNotFound(mode)
		}
		return Result{Kind: KindPatch, HTML: buf.String()}
	}
	if err := p.full.Execute(&buf, data); err != nil {
		return renderNotFound(mode)
	}
	return Result{Kind: KindFullHTML, HTML: buf.String()}
}

// renderNotFound always tags its Result KindNotFound regardless of mode; a
// caller driving Navigate events always requests Patch mode, so seeing
// KindNotFound here signals "unmatched route," which §4.5 treats as a
// logic error rather than displayable content (NotFound fragments are
// reserved for the out-of-scope static HTTP responder's full-page 404s).
func renderNotFound(mode Mode) Result {
	var buf bytes.Buffer
	if mode == Patch {
		_ = notFoundPage.patch.Execute(&buf, nil)
	} else {
		_ = notFoundPage.full.Execute(&buf, nil)
	}
	return Result{Kind: KindNotFound, HTML: buf.String()}
}

type landingPageData struct {
	AppVersion string
	Services   []string
}

func landingData(cfg *config.Config) landingPageData {
	return landingPageData{AppVersion: cfg.AppVersion, Services: cfg.OrderedServiceNames()}
}

type settingsPageData struct {
	AppVersion   string
	Services     []string
	Nodes        []nodeRow
	CINodes      []string
	Environments []environmentRow
}

type nodeRow struct {
	Name     string
	HostName string
}

type environmentRow struct {
	Name  string
	Nodes []string
}

func settingsData(cfg *config.Config) settingsPageData {
	data := settingsPageData{
		AppVersion: cfg.AppVersion,
		Services:   cfg.OrderedServiceNames(),
		CINodes:    cfg.CINodes,
	}
	for name, node := range cfg.Nodes {
		data.Nodes = append(data.Nodes, nodeRow{Name: name, HostName: node.HostName})
	}
	for name, env := range cfg.Environments {
		data.Environments = append(data.Environments, environmentRow{Name: name, Nodes: env.Nodes})
	}
	return data
}

type servicePageData struct {
	AppVersion  string
	ServiceName string
}

func serviceData(cfg *config.Config, name string) servicePageData {
	return servicePageData{AppVersion: cfg.AppVersion, ServiceName: name}
}

// SearchFragment renders the replacement service-list fragment for a
// search_services event, per spec §4.5's hook into the fuzzy filter (§4.6).
func SearchFragment(cfg *config.Config, query string) string {
	matches := fuzzy.Filter(query, cfg.OrderedServiceNames())
	var buf bytes.Buffer
	_ = searchResultsTmpl.Execute(&buf, matches)
	return buf.String()
}
