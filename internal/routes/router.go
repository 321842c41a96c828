// Package routes implements the URL router and Gemini catalog handlers:
// dispatch on path-info, query the catalog, stream a text/gemini body
// through a fastcgi.Request.
package routes

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/omar-polo/pkg-fcgi/internal/catalog"
	"github.com/omar-polo/pkg-fcgi/internal/fastcgi"
)

// Gemini status codes used by this responder.
const (
	statusInput       = 10
	statusSuccess     = 20
	statusTempFailure = 42
	statusNotFound    = 51
	statusBadRequest  = 59
)

type handlerFunc func(rt *Router, req *fastcgi.Request) (appStatus int, err error)

type route struct {
	pattern string
	handler handlerFunc
}

// table is matched in order, mirroring the original's `routes[]` array
// and route_dispatch's linear fnmatch scan; order is the tie-break.
var table = []route{
	{"/", (*Router).home},
	{"/search", (*Router).search},
	{"/all", (*Router).categories},
	{"/*", (*Router).port},
}

// Router dispatches path_info to a handler and talks to the catalog
// store on the handler's behalf. It holds no per-request state.
type Router struct {
	Store *catalog.Store
	Log   logrus.FieldLogger
}

// New builds a Router backed by store.
func New(store *catalog.Store, log logrus.FieldLogger) *Router {
	return &Router{Store: store, Log: log}
}

// Handler adapts Dispatch to fastcgi.Handler.
func (rt *Router) Handler(req *fastcgi.Request) (int, error) {
	return rt.Dispatch(req)
}

// Dispatch matches req.PathInfo against the route table and invokes the
// first matching handler. No match replies 51 and ends the request
// successfully (app_status 0).
func (rt *Router) Dispatch(req *fastcgi.Request) (int, error) {
	for _, r := range table {
		if !globMatch(r.pattern, req.PathInfo) {
			continue
		}
		return r.handler(rt, req)
	}

	if err := req.WriteStatus(statusNotFound, "not found"); err != nil {
		return 0, err
	}
	return 0, nil
}

func (rt *Router) home(req *fastcgi.Request) (int, error) {
	if err := req.WriteStatus(statusSuccess, "text/gemini"); err != nil {
		return 0, err
	}

	if err := writeAll(req,
		"# pkg_fcgi\n\n",
		"Welcome to pkg_fcgi, the Gemini interface for the OpenBSD ports collection.\n\n",
		"=> "+req.ScriptName+"search Search for a package\n",
		"=> "+req.ScriptName+"all All categories\n",
		"\n",
		"What you search will be matched against the package name (pkgstem), comment, DESCR and maintainer.\n",
	); err != nil {
		return 0, err
	}

	return 0, nil
}

func (rt *Router) search(req *fastcgi.Request) (int, error) {
	if req.QueryString == "" {
		if err := req.WriteStatus(statusInput, "search for a package"); err != nil {
			return 0, err
		}
		return 0, nil
	}

	query, err := unquote(req.QueryString)
	if err != nil {
		if err := req.WriteStatus(statusBadRequest, "bad request"); err != nil {
			return 0, err
		}
		return 1, nil
	}

	expr, err := ftsEscape(query)
	if err != nil {
		if err := req.WriteStatus(statusBadRequest, "bad request"); err != nil {
			return 0, err
		}
		return 1, nil
	}

	rt.Log.WithField("query", expr).Debug("routes: searching")

	rows, err := rt.Store.Search(expr)
	if err != nil {
		rt.Log.WithError(err).Warn("routes: search query failed")
		if err := req.WriteStatus(statusTempFailure, "internal error"); err != nil {
			return 0, err
		}
		return 1, nil
	}

	if err := req.WriteStatus(statusSuccess, "text/gemini"); err != nil {
		return 0, err
	}
	if err := req.Printf("# search results for %s\n\n", query); err != nil {
		return 0, err
	}

	for _, r := range rows {
		if err := req.Printf("=> %s%s %s: %s\n", req.ScriptName, r.FullPkgPath, r.PkgStem, r.Comment); err != nil {
			return 0, err
		}
	}

	if len(rows) == 0 {
		if err := req.Puts("No ports found\n"); err != nil {
			return 0, err
		}
	}

	return 0, nil
}

func (rt *Router) categories(req *fastcgi.Request) (int, error) {
	cats, err := rt.Store.Categories()
	if err != nil {
		rt.Log.WithError(err).Warn("routes: categories query failed")
		if err := req.WriteStatus(statusTempFailure, "internal error"); err != nil {
			return 0, err
		}
		return 1, nil
	}

	if err := req.WriteStatus(statusSuccess, "text/gemini"); err != nil {
		return 0, err
	}
	if err := req.Puts("# list of all categories\n\n"); err != nil {
		return 0, err
	}

	for _, cat := range cats {
		if err := req.Printf("=> %s%s %s\n", req.ScriptName, cat, cat); err != nil {
			return 0, err
		}
	}

	return 0, nil
}

// listing renders the category fallback: strip everything after (and
// including) the last '/' of path_info's first segment, repeatedly,
// leaving only the bare leading category name, matching route_listing's
// strrchr loop.
func (rt *Router) listing(req *fastcgi.Request) (int, error) {
	path := strings.TrimPrefix(req.PathInfo, "/")
	category := path
	for {
		i := strings.LastIndexByte(category, '/')
		if i == -1 {
			break
		}
		category = category[:i]
	}

	paths, err := rt.Store.PathsInCategory(category)
	if err != nil {
		rt.Log.WithError(err).Warn("routes: paths_in_category query failed")
		if err := req.WriteStatus(statusTempFailure, "internal error"); err != nil {
			return 0, err
		}
		return 1, nil
	}

	if err := req.WriteStatus(statusSuccess, "text/gemini"); err != nil {
		return 0, err
	}
	if err := req.Printf("# port(s) under %s\n\n", path); err != nil {
		return 0, err
	}

	for _, p := range paths {
		if err := req.Printf("=> %s%s %s\n", req.ScriptName, p, p); err != nil {
			return 0, err
		}
	}

	return 0, nil
}

func (rt *Router) port(req *fastcgi.Request) (int, error) {
	path := strings.TrimPrefix(req.PathInfo, "/")

	d, ok, err := rt.Store.Details(path)
	if err != nil {
		rt.Log.WithError(err).Warn("routes: details query failed")
		if err := req.WriteStatus(statusTempFailure, "internal error"); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if !ok {
		return rt.listing(req)
	}

	version := " unknown"
	if i := strings.LastIndexByte(d.PkgName, '-'); i != -1 {
		version = d.PkgName[i+1:]
	}

	if err := req.WriteStatus(statusSuccess, "text/gemini"); err != nil {
		return 0, err
	}

	if err := writeAll(req,
		"# "+path+" v"+version+"\n\n",
		"``` Command to install the package "+d.PkgStem+"\n",
		"# pkg_add "+d.PkgStem+"\n",
		"```\n\n",
		"> "+d.Comment+"\n\n",
		"=> https://cvsweb.openbsd.org/ports/"+d.FullPkgPath+" CVS Web\n",
	); err != nil {
		return 0, err
	}

	if d.Homepage != "" {
		if err := req.Printf("=> %s Port Homepage (WWW)\n", d.Homepage); err != nil {
			return 0, err
		}
	}

	if err := writeAll(req,
		"\n",
		"Maintainer: "+obfuscateMaintainer(d.Maintainer)+"\n\n",
		"## Description\n\n",
		"``` "+d.PkgStem+" description\n",
		d.Descr,
		"```\n\n",
	); err != nil {
		return 0, err
	}

	if d.Readme != "" {
		if err := writeAll(req,
			"## Readme\n\n",
			"``` README for "+d.PkgStem+"\n",
			d.Readme,
			"\n",
		); err != nil {
			return 0, err
		}
	}

	return 0, nil
}

func writeAll(req *fastcgi.Request, lines ...string) error {
	for _, l := range lines {
		if err := req.Puts(l); err != nil {
			return err
		}
	}
	return nil
}
