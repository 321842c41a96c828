// Package catalog opens the read-only ports/packages database and holds
// the four prepared queries the router needs. It never writes to the
// database; SIGHUP-driven Reopen is the only way its view of the data
// changes.
package catalog

import (
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

const (
	searchQuery = `
		select webpkg_fts.pkgstem, webpkg_fts.comment, paths.fullpkgpath
		from webpkg_fts
		join _ports p on p.fullpkgpath = webpkg_fts.id
		join _paths paths on paths.id = webpkg_fts.id
		where webpkg_fts match ?
		order by bm25(webpkg_fts)`

	detailsQuery = `
		select p.fullpkgpath, pp.pkgstem, pp.comment, pp.pkgname,
		       d.value, e.value, r.value, pp.homepage
		from _paths p
		join _descr d on d.fullpkgpath = p.id
		join _ports pp on pp.fullpkgpath = p.id
		join _email e on e.keyref = pp.maintainer
		left join _readme r on r.fullpkgpath = p.id
		where p.fullpkgpath = ?`

	categoriesQuery = `select distinct value from categories order by value`

	pathsInCategoryQuery = `select fullpkgpath from categories where value = ? order by fullpkgpath`
)

// Details is one row of the details query: everything route_port needs
// to render a package's page.
type Details struct {
	FullPkgPath string
	PkgStem     string
	Comment     string
	PkgName     string
	Descr       string
	Maintainer  string
	Readme      string // empty if the port has no README
	Homepage    string // empty if the port declares none
}

// SearchResult is one row of the search query.
type SearchResult struct {
	PkgStem     string
	Comment     string
	FullPkgPath string
}

// Store holds an open database handle and its four prepared statements.
// A Store is single-consumer per statement: callers must fully drain (or
// Close) a *sql.Rows before issuing another query on the same statement,
// mirroring the "reset before reuse" contract of the original sqlite3
// prepared-statement API. Store itself is safe to reopen concurrently
// with in-flight queries that have already obtained their *sql.Stmt.
type Store struct {
	mu   sync.RWMutex
	path string
	log  logrus.FieldLogger

	db *sql.DB

	search          *sql.Stmt
	details         *sql.Stmt
	categories      *sql.Stmt
	pathsInCategory *sql.Stmt
}

// Open opens path read-only and prepares all four queries. Preparation
// failure is fatal at startup.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	s := &Store{path: path, log: log}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	dsn := "file:" + s.path + "?mode=ro&immutable=1"
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return errors.Wrapf(err, "catalog: open %s", s.path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return errors.Wrapf(err, "catalog: ping %s", s.path)
	}

	stmts := make([]*sql.Stmt, 0, 4)
	prepare := func(query string) (*sql.Stmt, error) {
		stmt, err := db.Prepare(query)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		return stmt, nil
	}

	search, err := prepare(searchQuery)
	if err != nil {
		closeAll(db, stmts)
		return errors.Wrap(err, "catalog: prepare search")
	}
	details, err := prepare(detailsQuery)
	if err != nil {
		closeAll(db, stmts)
		return errors.Wrap(err, "catalog: prepare details")
	}
	categories, err := prepare(categoriesQuery)
	if err != nil {
		closeAll(db, stmts)
		return errors.Wrap(err, "catalog: prepare categories")
	}
	pathsInCategory, err := prepare(pathsInCategoryQuery)
	if err != nil {
		closeAll(db, stmts)
		return errors.Wrap(err, "catalog: prepare paths_in_category")
	}

	s.db = db
	s.search = search
	s.details = details
	s.categories = categories
	s.pathsInCategory = pathsInCategory

	return nil
}

func closeAll(db *sql.DB, stmts []*sql.Stmt) {
	for _, st := range stmts {
		st.Close()
	}
	db.Close()
}

// Reopen closes the current database handle and statements and opens
// them again, for SIGHUP-driven catalog republishing. In-flight queries
// that already hold a *sql.Stmt reference (captured under RLock) run to
// completion against the old handle; Go's database/sql keeps the
// underlying connection alive until they do.
func (s *Store) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.db
	oldStmts := []*sql.Stmt{s.search, s.details, s.categories, s.pathsInCategory}

	if err := s.open(); err != nil {
		return errors.Wrap(err, "catalog: reopen")
	}

	closeAll(old, oldStmts)
	s.log.Info("catalog: reopened")
	return nil
}

// Close releases the database handle and all prepared statements.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closeAll(s.db, []*sql.Stmt{s.search, s.details, s.categories, s.pathsInCategory})
	return nil
}

// Search runs the full-text query and returns every matching row,
// ordered by BM25 score (handled by the query itself).
func (s *Store) Search(matchExpr string) ([]SearchResult, error) {
	s.mu.RLock()
	stmt := s.search
	s.mu.RUnlock()

	rows, err := stmt.Query(matchExpr)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: search")
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.PkgStem, &r.Comment, &r.FullPkgPath); err != nil {
			return nil, errors.Wrap(err, "catalog: scan search row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Details fetches the one row for fullPkgPath. ok is false if no port
// has that path (the caller falls back to category listing).
func (s *Store) Details(fullPkgPath string) (d Details, ok bool, err error) {
	s.mu.RLock()
	stmt := s.details
	s.mu.RUnlock()

	row := stmt.QueryRow(fullPkgPath)

	var readme, homepage sql.NullString
	err = row.Scan(&d.FullPkgPath, &d.PkgStem, &d.Comment, &d.PkgName,
		&d.Descr, &d.Maintainer, &readme, &homepage)
	if errors.Is(err, sql.ErrNoRows) {
		return Details{}, false, nil
	}
	if err != nil {
		return Details{}, false, errors.Wrap(err, "catalog: details")
	}

	d.Readme = readme.String
	d.Homepage = homepage.String
	return d, true, nil
}

// Categories returns every distinct category name, ascending.
func (s *Store) Categories() ([]string, error) {
	s.mu.RLock()
	stmt := s.categories
	s.mu.RUnlock()

	rows, err := stmt.Query()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: categories")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "catalog: scan category row")
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// PathsInCategory returns every fullpkgpath under category, ascending.
func (s *Store) PathsInCategory(category string) ([]string, error) {
	s.mu.RLock()
	stmt := s.pathsInCategory
	s.mu.RUnlock()

	rows, err := stmt.Query(category)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: paths_in_category")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, errors.Wrap(err, "catalog: scan path row")
		}
		out = append(out, path)
	}
	return out, rows.Err()
}
