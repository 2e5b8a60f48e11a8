// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"bytes"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	libhttp "git.sr.ht/~shulhan/pakakeh.go/lib/http"
	"git.sr.ht/~shulhan/pakakeh.go/lib/memfs"
)

const contentTypeJS = `application/javascript`

// clientScriptPath is the fixed memfs path of the injected browser-side
// loop (an out-of-scope external collaborator, spec.md §1); assets.go only
// serves whatever payload lives there and injects it into served HTML.
const clientScriptPath = `/daebug-client.js`

var (
	headCloseRe     = regexp.MustCompile(`(?i)</head>`)
	firstScriptRe   = regexp.MustCompile(`(?i)<script[^>]*>`)
	bodyOpenRe      = regexp.MustCompile(`(?i)<body[^>]*>`)
	bodyCloseRe     = regexp.MustCompile(`(?i)</body>`)
	htmlCloseRe     = regexp.MustCompile(`(?i)</html>`)
	importMapTagRe  = regexp.MustCompile(`(?is)<script[^>]*type=["']importmap["'][^>]*>(.*?)</script>`)
)

// initAssets wires the static file surface onto b.httpd: a memfs rooted at
// env.Root, with a HandleFS hook performing the HTML import-map/
// client-script injection and JSON external-import-map merging of
// spec.md §4.F.
func (b *Broker) initAssets(serverOpts *libhttp.ServerOptions) (err error) {
	var mfs *memfs.MemFS
	mfs, err = memfs.New(&memfs.Options{
		Root:        b.env.Root,
		Development: true,
	})
	if err != nil {
		return err
	}

	serverOpts.Memfs = mfs
	serverOpts.EnableIndexHtml = true
	serverOpts.HandleFS = b.handleStaticFS
	return nil
}

// handleStaticFS intercepts static responses to inject the import map and
// client script into HTML, and to merge the client import map into JSON
// files that already declare "imports" or "scopes" — spec.md §4.F. It
// returns true to signal "already handled" (write suppressed by the
// caller convention, matching the teacher's handleFSAuth shape) only when
// it has written a modified body itself; for anything else it returns
// false so default memfs serving proceeds unmodified.
func (b *Broker) handleStaticFS(node *memfs.Node, w http.ResponseWriter, req *http.Request) bool {
	var content = node.Content
	if content == nil {
		return false
	}

	switch {
	case strings.HasSuffix(node.Path, `.html`) || strings.HasSuffix(node.Path, `.htm`):
		var out = injectIntoHTML(content, clientImportMap(), clientScriptTag())
		w.Header().Set(libhttp.HeaderContentType, `text/html; charset=utf-8`)
		_, _ = w.Write(out)
		return true

	case strings.HasSuffix(node.Path, `.json`):
		var out, merged = mergeExternalImportMap(content, clientImportMap())
		if !merged {
			return false
		}
		w.Header().Set(libhttp.HeaderContentType, `application/json; charset=utf-8`)
		_, _ = w.Write(out)
		return true

	default:
		return false
	}
}

// clientImportMap is the browser client's synthetic module specifier,
// mapped to the fixed path it is served from.
func clientImportMap() map[string]string {
	return map[string]string{
		`daebug`: clientScriptPath,
	}
}

func clientScriptTag() string {
	return `<script type="module" src="` + clientScriptPath + `"></script>`
}

// injectIntoHTML performs the two HTML injections of spec.md §4.F: (a)
// merge importMap into an existing <script type="importmap"> or insert a
// new one at the first available insertion point; (b) append scriptTag at
// the first available insertion point.
func injectIntoHTML(html []byte, importMap map[string]string, scriptTag string) []byte {
	html = injectImportMap(html, importMap)
	html = injectScriptTag(html, scriptTag)
	return html
}

// injectImportMap merges importMap into the first <script
// type="importmap"> block found in html, or inserts a new one at the
// first available point: before </head>, before the first <script>,
// after <body>, or prepended.
func injectImportMap(html []byte, importMap map[string]string) []byte {
	if m := importMapTagRe.FindSubmatchIndex(html); m != nil {
		var existing = html[m[2]:m[3]]
		var merged = mergeImportMapJSON(existing, importMap)

		var out = make([]byte, 0, len(html)+len(merged))
		out = append(out, html[:m[2]]...)
		out = append(out, merged...)
		out = append(out, html[m[3]:]...)
		return out
	}

	var tag = renderImportMapTag(importMap)
	return insertAtFirstPoint(html, tag, headCloseRe, firstScriptRe, bodyOpenRe)
}

// injectScriptTag appends scriptTag at the first available point: before
// </body>, before </html>, or appended to the end of the document.
func injectScriptTag(html []byte, scriptTag string) []byte {
	if loc := bodyCloseRe.FindIndex(html); loc != nil {
		return spliceBefore(html, loc[0], scriptTag)
	}
	if loc := htmlCloseRe.FindIndex(html); loc != nil {
		return spliceBefore(html, loc[0], scriptTag)
	}
	var out = make([]byte, 0, len(html)+len(scriptTag))
	out = append(out, html...)
	out = append(out, []byte(scriptTag)...)
	return out
}

// insertAtFirstPoint inserts payload immediately before the first match
// among res, tried in order; if none match, payload is prepended.
func insertAtFirstPoint(html []byte, payload string, res ...*regexp.Regexp) []byte {
	for i, re := range res {
		if loc := re.FindIndex(html); loc != nil {
			// "after <body>" (the third candidate) inserts after the
			// match, not before it; every other candidate inserts
			// before.
			if i == 2 {
				return spliceBefore(html, loc[1], payload)
			}
			return spliceBefore(html, loc[0], payload)
		}
	}
	var out = make([]byte, 0, len(html)+len(payload))
	out = append(out, []byte(payload)...)
	out = append(out, html...)
	return out
}

func spliceBefore(html []byte, idx int, payload string) []byte {
	var out = make([]byte, 0, len(html)+len(payload))
	out = append(out, html[:idx]...)
	out = append(out, []byte(payload)...)
	out = append(out, html[idx:]...)
	return out
}

func renderImportMapTag(importMap map[string]string) string {
	var b, _ = json.MarshalIndent(map[string]any{`imports`: importMap}, ``, `  `)
	return `<script type="importmap">` + string(b) + `</script>`
}

// mergeImportMapJSON parses existing as a `{"imports": {...}, "scopes":
// {...}}` object, merges importMap into its "imports" key (our keys win
// on conflict), and re-serializes it.
func mergeImportMapJSON(existing []byte, importMap map[string]string) []byte {
	var doc map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(existing), &doc); err != nil || doc == nil {
		doc = map[string]any{}
	}

	var imports map[string]any
	if v, ok := doc[`imports`].(map[string]any); ok {
		imports = v
	} else {
		imports = map[string]any{}
	}
	for k, v := range importMap {
		imports[k] = v
	}
	doc[`imports`] = imports

	var b, err = json.MarshalIndent(doc, ``, `  `)
	if err != nil {
		return existing
	}
	return b
}

// mergeExternalImportMap treats content as a JSON file; if its top-level
// object has an "imports" or "scopes" key, importMap is merged into
// "imports" and the re-serialized document is returned with merged=true.
// Any other JSON shape is left untouched (merged=false).
func mergeExternalImportMap(content []byte, importMap map[string]string) (out []byte, merged bool) {
	var doc map[string]any
	if err := json.Unmarshal(content, &doc); err != nil {
		return content, false
	}

	var _, hasImports = doc[`imports`]
	var _, hasScopes = doc[`scopes`]
	if !hasImports && !hasScopes {
		return content, false
	}

	var imports map[string]any
	if v, ok := doc[`imports`].(map[string]any); ok {
		imports = v
	} else {
		imports = map[string]any{}
	}
	for k, v := range importMap {
		imports[k] = v
	}
	doc[`imports`] = imports

	var b, err = json.MarshalIndent(doc, ``, `  `)
	if err != nil {
		return content, false
	}
	return b, true
}
