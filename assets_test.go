// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"strings"
	"testing"

	"git.sr.ht/~shulhan/pakakeh.go/lib/test"
)

func TestInjectIntoHTML_insertsNewImportMapAndScript(t *testing.T) {
	var html = []byte("<html><head><title>x</title></head><body>hi</body></html>")

	var out = injectIntoHTML(html, clientImportMap(), clientScriptTag())
	var s = string(out)

	test.Assert(t, `has importmap`, true, strings.Contains(s, `type="importmap"`))
	test.Assert(t, `importmap before head close`, true, strings.Index(s, `importmap`) < strings.Index(s, `</head>`))
	test.Assert(t, `has client script`, true, strings.Contains(s, clientScriptPath))
	test.Assert(t, `script before body close`, true, strings.Index(s, clientScriptPath) < strings.Index(s, `</body>`))
}

func TestInjectIntoHTML_mergesExistingImportMap(t *testing.T) {
	var html = []byte(`<html><head><script type="importmap">{"imports":{"foo":"/foo.js"}}</script></head><body></body></html>`)

	var out = injectIntoHTML(html, clientImportMap(), clientScriptTag())
	var s = string(out)

	test.Assert(t, `kept existing mapping`, true, strings.Contains(s, `/foo.js`))
	test.Assert(t, `added new mapping`, true, strings.Contains(s, clientScriptPath))

	var count = strings.Count(s, `type="importmap"`)
	test.Assert(t, `exactly one importmap tag`, 1, count)
}

func TestInjectIntoHTML_noHeadOrBody(t *testing.T) {
	var html = []byte(`<div>no head or body here</div>`)

	var out = injectIntoHTML(html, clientImportMap(), clientScriptTag())
	var s = string(out)

	test.Assert(t, `has importmap`, true, strings.Contains(s, `type="importmap"`))
	test.Assert(t, `has client script`, true, strings.Contains(s, clientScriptPath))
}

func TestMergeExternalImportMap_withImports(t *testing.T) {
	var content = []byte(`{"imports":{"bar":"/bar.js"}}`)

	var out, merged = mergeExternalImportMap(content, clientImportMap())
	if !merged {
		t.Fatal(`mergeExternalImportMap: expected merged=true`)
	}
	var s = string(out)
	test.Assert(t, `kept bar`, true, strings.Contains(s, `/bar.js`))
	test.Assert(t, `added daebug`, true, strings.Contains(s, clientScriptPath))
}

func TestMergeExternalImportMap_withScopes(t *testing.T) {
	var content = []byte(`{"scopes":{"/vendor/":{"bar":"/vendor/bar.js"}}}`)

	var _, merged = mergeExternalImportMap(content, clientImportMap())
	if !merged {
		t.Fatal(`mergeExternalImportMap: expected merged=true for a scopes-only map`)
	}
}

func TestMergeExternalImportMap_unrelatedJSON(t *testing.T) {
	var content = []byte(`{"name":"some-package","version":"1.0.0"}`)

	var out, merged = mergeExternalImportMap(content, clientImportMap())
	if merged {
		t.Fatal(`mergeExternalImportMap: expected merged=false for unrelated JSON`)
	}
	test.Assert(t, `untouched`, string(content), string(out))
}
