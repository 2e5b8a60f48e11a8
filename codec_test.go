// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"os"
	"strings"
	"testing"

	"git.sr.ht/~shulhan/pakakeh.go/lib/test"
)

func TestParseRequest_happyPath(t *testing.T) {
	var text = "history\n\n" + canonicalFooter + "\n\n" +
		"> **alice** to p at 12:00:00\n" +
		"```js\n1+1\n```\n"

	var req = parseRequest(text, `p`)
	if req == nil {
		t.Fatal(`parseRequest: expected non-nil request`)
	}

	test.Assert(t, `Agent`, `alice`, req.Agent)
	test.Assert(t, `Target`, `p`, req.Target)
	test.Assert(t, `Time`, `12:00:00`, req.Time)
	test.Assert(t, `Code`, `1+1`, req.Code)
	test.Assert(t, `HasFooter`, true, req.HasFooter)
}

func TestParseRequest_defaultedHeader(t *testing.T) {
	var text = canonicalFooter + "\n\n```js\n2+2\n```\n"

	var req = parseRequest(text, `mypage`)
	if req == nil {
		t.Fatal(`parseRequest: expected non-nil request`)
	}

	test.Assert(t, `Agent`, `agent`, req.Agent)
	test.Assert(t, `Target`, `mypage`, req.Target)
	test.Assert(t, `Time`, ``, req.Time)
	test.Assert(t, `Code`, `2+2`, req.Code)
}

func TestParseRequest_emptyBelowFooter(t *testing.T) {
	var text = canonicalFooter + "\n\n   \n"

	var req = parseRequest(text, `p`)
	if req != nil {
		t.Fatalf(`parseRequest: expected nil, got %+v`, req)
	}
}

func TestParseRequest_emptyFenceBody(t *testing.T) {
	var text = canonicalFooter + "\n\n```js\n```\n"

	var req = parseRequest(text, `p`)
	if req != nil {
		t.Fatalf(`parseRequest: expected nil, got %+v`, req)
	}
}

func TestParseRequest_fenceIsReplyHeaderOnly(t *testing.T) {
	var text = canonicalFooter + "\n\n```js\n> **p** to alice at 12:00:00 (12ms)\n```\n"

	var req = parseRequest(text, `p`)
	if req != nil {
		t.Fatalf(`parseRequest: expected nil (reply-header guard), got %+v`, req)
	}
}

func TestParseRequest_noFooterRecovery(t *testing.T) {
	var text = "some old conversation\n\n```js\n2+3\n```\n"

	var req = parseRequest(text, `p`)
	if req == nil {
		t.Fatal(`parseRequest: expected non-nil request`)
	}

	test.Assert(t, `Agent`, `agent`, req.Agent)
	test.Assert(t, `Code`, `2+3`, req.Code)
	test.Assert(t, `HasFooter`, false, req.HasFooter)
}

func TestParseRequest_noFooterAnsweredReply(t *testing.T) {
	var text = "> **p** to alice at 12:00:00 (12ms)\n```JSON\n2\n```\n"

	var req = parseRequest(text, `p`)
	if req != nil {
		t.Fatalf(`parseRequest: expected nil (already-answered reply), got %+v`, req)
	}
}

func TestParseRequest_noFooterIgnoresNonJSFence(t *testing.T) {
	var text = "```python\nprint(1)\n```\n"

	var req = parseRequest(text, `p`)
	if req != nil {
		t.Fatalf(`parseRequest: expected nil, got %+v`, req)
	}
}

func TestWriteReply_thenParseIsNil(t *testing.T) {
	var dir = t.TempDir()
	var page = newPage(`p`, ``, dir+`/p.md`)
	page.markSeen()

	var job = &Job{
		Page:        page,
		Agent:       `alice`,
		Code:        `1+1`,
		StartedAt:   TimeNow(),
		RequestedAt: TimeNow(),
	}

	var initial = canonicalFooter + "\n\n> **alice** to p at 12:00:00\n```js\n1+1\n```\n"
	var err = writePageFile(page, initial)
	if err != nil {
		t.Fatal(err)
	}

	err = writeExecuting(job)
	if err != nil {
		t.Fatal(err)
	}

	err = writeReply(job, Result{OK: true, Value: float64(2)})
	if err != nil {
		t.Fatal(err)
	}

	var rawb, rerr = os.ReadFile(page.File)
	if rerr != nil {
		t.Fatal(rerr)
	}
	var raw = string(rawb)

	if !strings.HasSuffix(strings.TrimRight(raw, "\n")+"\n", canonicalFooter+"\n") {
		t.Fatalf(`writeReply: file does not end with canonical footer:\n%s`, raw)
	}

	var req = parseRequest(raw, `p`)
	if req != nil {
		t.Fatalf(`parseRequest after writeReply: expected nil, got %+v`, req)
	}
}

func TestRenderBackgroundEvents_truncation(t *testing.T) {
	var events = make([]BackgroundEvent, 13)
	for i := range events {
		events[i] = BackgroundEvent{Type: `console`, Level: `log`, Message: `m`}
	}

	var out = renderBackgroundEvents(events)
	var joined = strings.Join(out, "\n")

	test.Assert(t, `contains omitted note`, true, strings.Contains(joined, `3 more background events omitted`))
}
