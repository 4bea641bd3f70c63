// Package templatecollection builds one html/template set per page. Each
// page_*.gohtml file is parsed together with layout.gohtml and every
// shared_*.gohtml file, at the root or one directory down.
package templatecollection

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
)

type Collection interface {
	ExecuteTemplate(wr io.Writer, name string, data interface{}) error
}

var ErrTemplateNotFound = fmt.Errorf("template not found")

func expandGlobs(a []string) []string {
	var r []string

	for _, e := range a {
		r = append(r, e, "**/"+e)
	}

	return r
}

func glob(fileSystem fs.FS, patterns ...string) ([]string, error) {
	var names []string

	for _, pattern := range expandGlobs(patterns) {
		a, err := fs.Glob(fileSystem, pattern)
		if err != nil {
			return nil, fmt.Errorf("templatecollection.glob: could not get names for pattern %q: %w", pattern, err)
		}

		names = append(names, a...)
	}

	return names, nil
}

func parse(fileSystem fs.FS, funcs template.FuncMap, name string) (*template.Template, error) {
	fileNames, err := glob(fileSystem, name+".gohtml", "layout.gohtml", "shared_*.gohtml")
	if err != nil {
		return nil, err
	}

	if len(fileNames) == 0 || !strings.HasSuffix(fileNames[0], name+".gohtml") {
		return nil, fmt.Errorf("templatecollection.parse: %s: %w", name, ErrTemplateNotFound)
	}

	tpl := template.New(name)
	if funcs != nil {
		tpl = tpl.Funcs(funcs)
	}

	tpl, err = tpl.ParseFS(fileSystem, fileNames...)
	if err != nil {
		return nil, fmt.Errorf("templatecollection.parse: %s: %w", name, err)
	}

	return tpl, nil
}

// Cached parses every page once, up front. It is safe for concurrent use.
type Cached struct {
	m map[string]*template.Template
}

func NewCached(fileSystem fs.FS, funcs template.FuncMap) (*Cached, error) {
	pageFiles, err := glob(fileSystem, "page_*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("templatecollection.NewCached: %w", err)
	}

	c := Cached{m: make(map[string]*template.Template)}

	for _, pageFile := range pageFiles {
		name := strings.TrimSuffix(path.Base(pageFile), ".gohtml")

		tpl, err := parse(fileSystem, funcs, name)
		if err != nil {
			return nil, fmt.Errorf("templatecollection.NewCached: %w", err)
		}

		c.m[name] = tpl
	}

	return &c, nil
}

// Names lists the parsed pages, sorted.
func (c *Cached) Names() []string {
	var a []string
	for k := range c.m {
		a = append(a, k)
	}
	sort.Strings(a)
	return a
}

func (c *Cached) ExecuteTemplate(wr io.Writer, name string, data interface{}) error {
	tpl, ok := c.m[name]
	if !ok {
		return fmt.Errorf("templatecollection.Cached.ExecuteTemplate: %s: %w", name, ErrTemplateNotFound)
	}

	if err := tpl.ExecuteTemplate(wr, name, data); err != nil {
		return fmt.Errorf("templatecollection.Cached.ExecuteTemplate: %w", err)
	}

	return nil
}

// Live parses the page on every call, so template edits show up without a
// restart.
type Live struct {
	fs fs.FS
	m  template.FuncMap
}

func NewLive(fileSystem fs.FS, funcs template.FuncMap) (*Live, error) {
	return &Live{fs: fileSystem, m: funcs}, nil
}

func (l *Live) ExecuteTemplate(wr io.Writer, name string, data interface{}) error {
	tpl, err := parse(l.fs, l.m, name)
	if err != nil {
		return fmt.Errorf("templatecollection.Live.ExecuteTemplate: %w", err)
	}

	if err := tpl.ExecuteTemplate(wr, name, data); err != nil {
		return fmt.Errorf("templatecollection.Live.ExecuteTemplate: %w", err)
	}

	return nil
}
