// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"regexp"
	"strings"
)

// footerDivider is the 70-hyphen divider line that, together with
// footerInstruction, forms the canonical footer separating historical
// conversation from the next request.
var footerDivider = strings.Repeat(`-`, 70)

// footerInstruction is the exact instruction line of the canonical footer.
const footerInstruction = `> Write code in a fenced JS block below to execute against this page.`

// canonicalFooter is the two-line footer written at the end of every idle
// page file.
var canonicalFooter = footerDivider + "\n" + footerInstruction

var (
	// agentHeaderRe matches `> **<agent>** to <target> at HH:MM:SS`.
	agentHeaderRe = regexp.MustCompile(`^> \*\*(.+?)\*\* to (\S+) at (\d{2}:\d{2}:\d{2})\s*$`)

	// replyHeaderRe matches `> **<page>** to <agent> at HH:MM:SS[ (**ERROR**)] (<duration>)`.
	replyHeaderRe = regexp.MustCompile(`^> \*\*(.+?)\*\* to (.+?) at (\d{2}:\d{2}:\d{2})(?: \(\*\*ERROR\*\*\))? \(([^()]+)\)\s*$`)

	// executingBodyRe matches the executing-placeholder body line.
	executingBodyRe = regexp.MustCompile(`^executing \((\d+)s\)\s*$`)

	// fenceOpenRe matches any fence-open line, including reply/
	// background-event fences whose language tag carries a dot
	// (window.onerror) or a trailing metadata word (console.<level>);
	// only the first whitespace-delimited token is captured as Lang,
	// and callers filter on Lang themselves (parseRequestNoFooter
	// accepts only "", "js", "javascript"). Recognizing every fence
	// open/close pair here, not just request-shaped ones, keeps
	// scanFencedBlocks' index pairing correct when it walks a whole
	// file that also contains historical reply blocks.
	fenceOpenRe  = regexp.MustCompile("^```(\\S*)")
	fenceCloseRe = regexp.MustCompile("^```\\s*$")
)

// parsedRequest is the result of parseRequest.
type parsedRequest struct {
	Agent     string
	Target    string
	Time      string
	Code      string
	// HeaderLine is the original, unparsed agent-header line, when one
	// was present in the file; empty when the header was defaulted.
	HeaderLine string
	HasFooter  bool
}

// fencedBlock is one occurrence of a fenced code block within a slice of
// lines, identified by the line indices of its opening and closing fence.
type fencedBlock struct {
	Lang         string
	Body         string
	OpenLineIdx  int
	CloseLineIdx int
}

// scanFencedBlocks walks lines top to bottom and returns every
// well-terminated fenced block it finds. An unterminated trailing fence is
// not reported.
func scanFencedBlocks(lines []string) []fencedBlock {
	var out []fencedBlock

	var i = 0
	for i < len(lines) {
		var m = fenceOpenRe.FindStringSubmatch(lines[i])
		if m == nil {
			i++
			continue
		}

		var openIdx = i
		var lang = m[1]
		var j = openIdx + 1
		for j < len(lines) && !fenceCloseRe.MatchString(lines[j]) {
			j++
		}
		if j >= len(lines) {
			// Unterminated fence: the rest of the file is inside it.
			break
		}

		out = append(out, fencedBlock{
			Lang:         lang,
			Body:         strings.Join(lines[openIdx+1:j], "\n"),
			OpenLineIdx:  openIdx,
			CloseLineIdx: j,
		})
		i = j + 1
	}
	return out
}

// findLastFooterIndex returns the line index of the divider line of the
// last canonical footer in lines, or -1 if none is present.
func findLastFooterIndex(lines []string) int {
	var last = -1
	for i := 0; i+1 < len(lines); i++ {
		if lines[i] != footerDivider {
			continue
		}
		if strings.TrimRight(lines[i+1], " \t\r") == footerInstruction {
			last = i
		}
	}
	return last
}

// firstLineIsReplyHeader reports whether the first line of code matches
// the reply-header grammar, guarding parseRequest against a user pasting a
// historical reply header as new code.
func firstLineIsReplyHeader(code string) bool {
	var first, _, _ = strings.Cut(code, "\n")
	return replyHeaderRe.MatchString(strings.TrimRight(first, " \t\r"))
}

// trimTrailingBlankLines drops trailing blank lines from lines.
func trimTrailingBlankLines(lines []string) []string {
	var n = len(lines)
	for n > 0 && strings.TrimSpace(lines[n-1]) == `` {
		n--
	}
	return lines[:n]
}
