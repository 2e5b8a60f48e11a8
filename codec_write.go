// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

// writeExecuting rewrites job's page file with an executing placeholder
// immediately after the preserved request, then re-emits the canonical
// footer. It is a no-op, with a logged warning, if the file is missing or
// has never been seen by the watcher.
func writeExecuting(job *Job) error {
	var content, ok, err = readSeenPageFile(job.Page)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var lines = strings.Split(content, "\n")
	var footerIdx = findLastFooterIndex(lines)

	var head []string
	if footerIdx >= 0 {
		head = trimTrailingBlankLines(lines[:footerIdx])
		head = append(head, ``)
		head = append(head, requestLines(job)...)
	} else {
		// The request is already present verbatim in the file; no
		// footer was found to cut it away from.
		head = trimTrailingBlankLines(lines)
	}

	head = append(head, ``)
	head = append(head, fmt.Sprintf(`> **%s** to %s at %s`, job.Page.Name, job.Agent, clockFmt(TimeNow())))
	head = append(head, `executing (0s)`)
	head = append(head, ``)
	head = append(head, canonicalFooter)

	return writePageFile(job.Page, strings.Join(head, "\n"))
}

// requestLines renders the preserved agent request (header, if any, plus
// its code fence) for re-emission above a new executing placeholder.
func requestLines(job *Job) []string {
	var out []string
	if len(job.requestHeaderLine) > 0 {
		out = append(out, job.requestHeaderLine)
	} else {
		out = append(out, fmt.Sprintf(`> **%s** to %s at %s`, job.Agent, job.Page.Name, clockFmt(job.RequestedAt)))
	}
	out = append(out, "```js")
	out = append(out, strings.Split(job.Code, "\n")...)
	out = append(out, "```")
	return out
}

// writeExecutingRefresh rewrites the in-place "executing (<N>s)" line with
// the job's current elapsed time. Called every Env.Ticker while a job
// runs. A missing file is swallowed, per spec.
func writeExecutingRefresh(job *Job) error {
	var content, ok, err = readSeenPageFile(job.Page)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var elapsed = int(TimeNow().Sub(job.StartedAt).Seconds())
	var lines = strings.Split(content, "\n")

	var replaced bool
	for i, line := range lines {
		if executingBodyRe.MatchString(line) {
			lines[i] = fmt.Sprintf(`executing (%ds)`, elapsed)
			replaced = true
			break
		}
	}
	if !replaced {
		return nil
	}

	return writePageFile(job.Page, strings.Join(lines, "\n"))
}

// writeReply splices job's result into the page file in place of the
// executing placeholder (or appends the request and reply directly when
// no placeholder was ever written), then re-emits the canonical footer.
func writeReply(job *Job, result Result) error {
	var content, ok, err = readSeenPageFile(job.Page)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var lines = strings.Split(content, "\n")
	var footerIdx = findLastFooterIndex(lines)
	var body = lines
	if footerIdx >= 0 {
		body = lines[:footerIdx]
	}

	var execIdx = findExecutingBlockIndex(body, job.Page.Name, job.Agent)

	var head []string
	if execIdx >= 0 {
		head = trimTrailingBlankLines(body[:execIdx])
	} else {
		head = trimTrailingBlankLines(body)
		head = append(head, ``)
		head = append(head, requestLines(job)...)
	}

	head = append(head, ``)
	head = append(head, renderReplyBlock(job, result)...)
	head = append(head, ``)
	head = append(head, canonicalFooter)
	if execIdx >= 0 && footerIdx >= 0 {
		// Text typed below the footer while the job ran is a later
		// request; keep it below the re-emitted footer.
		head = append(head, lines[footerIdx+2:]...)
	}

	return writePageFile(job.Page, strings.Join(head, "\n"))
}

// findExecutingBlockIndex locates the reply header for (page, agent)
// whose following non-blank line is an executing placeholder, returning
// the header's line index, or -1 if none is found.
func findExecutingBlockIndex(lines []string, pageName, agent string) int {
	for i := 0; i < len(lines); i++ {
		var m = replyHeaderRe.FindStringSubmatch(lines[i])
		if m == nil {
			// The header written by writeExecuting carries no
			// duration, so it has the agent-header shape.
			m = agentHeaderRe.FindStringSubmatch(lines[i])
		}
		if m == nil {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(m[1]), pageName) {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(m[2]), agent) {
			continue
		}

		var j = i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == `` {
			j++
		}
		if j < len(lines) && executingBodyRe.MatchString(lines[j]) {
			return i
		}
	}
	return -1
}

// renderReplyBlock renders the reply header, result block, and any
// background-event blocks for job's result.
func renderReplyBlock(job *Job, result Result) []string {
	var duration = TimeNow().Sub(job.StartedAt)

	var marker = ``
	if !result.OK {
		marker = ` (**ERROR**)`
	}

	var out []string
	out = append(out, fmt.Sprintf(`> **%s** to %s at %s%s (%s)`,
		job.Page.Name, job.Agent, clockFmt(TimeNow()), marker, durationFmt(duration)))

	if result.OK {
		out = append(out, "```JSON")
		out = append(out, renderResultValue(result.Value))
		out = append(out, "```")
	} else {
		out = append(out, "```Error")
		out = append(out, result.errorMessage())
		out = append(out, "```")
	}

	out = append(out, renderBackgroundEvents(result.BackgroundEvents)...)
	return out
}

// renderResultValue stringifies a successful result's value: pretty JSON
// for objects/arrays, a plain string conversion otherwise.
func renderResultValue(value any) string {
	switch v := value.(type) {
	case nil:
		return `null`
	case string:
		return v
	case map[string]any, []any:
		var b, err = json.MarshalIndent(v, ``, `  `)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

// renderBackgroundEvents renders zero or more background-event blocks,
// truncating to the first 2 and last 8 with an ellipsis note when there
// are more than 10.
func renderBackgroundEvents(events []BackgroundEvent) []string {
	if len(events) == 0 {
		return nil
	}

	var selected = events
	var omitted = 0
	if len(events) > 10 {
		omitted = len(events) - 10
		selected = nil
	}

	var out []string
	if omitted > 0 {
		for _, ev := range events[:2] {
			out = append(out, renderBackgroundEvent(ev)...)
		}
		out = append(out, ``, fmt.Sprintf(`... (%d more background events omitted) ...`, omitted), ``)
		for _, ev := range events[len(events)-8:] {
			out = append(out, renderBackgroundEvent(ev)...)
		}
		return out
	}

	for _, ev := range selected {
		out = append(out, renderBackgroundEvent(ev)...)
	}
	return out
}

// renderBackgroundEvent renders a single background-event fenced block.
func renderBackgroundEvent(ev BackgroundEvent) []string {
	var lang, meta = backgroundEventLang(ev)

	var fenceHeader = "```" + lang
	if len(meta) > 0 {
		fenceHeader += ` ` + meta
	}

	var out = []string{fenceHeader}
	if len(ev.Caller) > 0 {
		out = append(out, ev.Caller)
	}
	out = append(out, ev.Message)
	out = append(out, "```")
	return out
}

// backgroundEventLang picks the fence language tag and optional metadata
// word for a background event, per spec.md §4.B.
func backgroundEventLang(ev BackgroundEvent) (lang, meta string) {
	if ev.Type == `console` {
		meta = `console.` + ev.Level
		if isJSONText(ev.Message) {
			return `JSON`, meta
		}
		return `Text`, meta
	}

	if ev.Level == `error` {
		return `Error`, ``
	}
	switch ev.Source {
	case `window.onerror`, `unhandledrejection`:
		return ev.Source, ``
	default:
		return `Error`, ``
	}
}

func isJSONText(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}

// appendDiagnosticNote appends a one-line operator note (e.g. a
// worker-timeout restart notice) above the canonical footer, without
// disturbing any executing placeholder or pending request already present.
func appendDiagnosticNote(page *Page, note string) error {
	var content, ok, err = readSeenPageFile(page)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var lines = strings.Split(content, "\n")
	var footerIdx = findLastFooterIndex(lines)

	var head []string
	if footerIdx >= 0 {
		head = trimTrailingBlankLines(lines[:footerIdx])
	} else {
		head = trimTrailingBlankLines(lines)
	}

	head = append(head, ``)
	head = append(head, fmt.Sprintf(`> %s at %s`, note, clockFmt(TimeNow())))
	head = append(head, ``)
	head = append(head, canonicalFooter)
	if footerIdx >= 0 {
		head = append(head, lines[footerIdx+2:]...)
	}

	return writePageFile(page, strings.Join(head, "\n"))
}

// appendBackgroundFlush appends a standalone set of background-event
// blocks reported outside of any job (spec.md §4.F "background-flush"),
// above the canonical footer.
func appendBackgroundFlush(page *Page, events []BackgroundEvent) error {
	if len(events) == 0 {
		return nil
	}

	var content, ok, err = readSeenPageFile(page)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var lines = strings.Split(content, "\n")
	var footerIdx = findLastFooterIndex(lines)

	var head []string
	if footerIdx >= 0 {
		head = trimTrailingBlankLines(lines[:footerIdx])
	} else {
		head = trimTrailingBlankLines(lines)
	}

	head = append(head, ``)
	head = append(head, fmt.Sprintf(`> background events at %s`, clockFmt(TimeNow())))
	head = append(head, renderBackgroundEvents(events)...)
	head = append(head, ``)
	head = append(head, canonicalFooter)

	return writePageFile(page, strings.Join(head, "\n"))
}

// readSeenPageFile reads page.File, returning ok=false (no error) when the
// file does not exist or has never been marked seen by the watcher —
// the write-race protection of spec.md §5.
func readSeenPageFile(page *Page) (content string, ok bool, err error) {
	if !page.isSeen() {
		mlog.Outf(`codec: %s: file not yet seen by watcher, skipping write`, page.Name)
		return ``, false, nil
	}

	var raw, rerr = os.ReadFile(page.File)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			mlog.Outf(`codec: %s: file missing, skipping write`, page.Name)
			return ``, false, nil
		}
		return ``, false, fmt.Errorf(`readSeenPageFile: %w`, rerr)
	}
	return string(raw), true, nil
}

// writePageFile writes content, ensuring it ends with exactly one
// trailing newline.
func writePageFile(page *Page, content string) error {
	content = strings.TrimRight(content, "\n") + "\n"
	return os.WriteFile(page.File, []byte(content), 0600)
}
