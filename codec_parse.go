// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import "strings"

// parseRequest extracts the next pending Request from the raw text of a
// page file, or returns nil when there is none. pageName identifies the
// page the file belongs to, used to recognize this page's own historical
// reply headers in the no-footer recovery path.
func parseRequest(text string, pageName string) *parsedRequest {
	var lines = strings.Split(text, "\n")

	var footerIdx = findLastFooterIndex(lines)
	if footerIdx >= 0 {
		return parseRequestWithFooter(lines[footerIdx+2:], pageName)
	}
	return parseRequestNoFooter(lines, pageName)
}

// parseRequestWithFooter parses the region strictly below the last
// canonical footer.
func parseRequestWithFooter(region []string, pageName string) *parsedRequest {
	var idx = 0
	for idx < len(region) && strings.TrimSpace(region[idx]) == `` {
		idx++
	}
	if idx == len(region) {
		return nil
	}
	var body = region[idx:]

	var agent, target, when, headerLine = `agent`, pageName, ``, ``
	if m := agentHeaderRe.FindStringSubmatch(body[0]); m != nil {
		agent, target, when = m[1], m[2], m[3]
		headerLine = body[0]
		body = body[1:]
	}

	var blocks = scanFencedBlocks(body)
	if len(blocks) == 0 {
		return nil
	}

	var code = blocks[0].Body
	if strings.TrimSpace(code) == `` {
		return nil
	}
	if firstLineIsReplyHeader(code) {
		return nil
	}

	return &parsedRequest{
		Agent:      agent,
		Target:     target,
		Time:       when,
		Code:       code,
		HeaderLine: headerLine,
		HasFooter:  true,
	}
}

// parseRequestNoFooter implements the recovery path used when the user has
// deleted the canonical footer: the last fenced block with an empty, "js",
// or "javascript" language tag is taken as the pending request.
func parseRequestNoFooter(lines []string, pageName string) *parsedRequest {
	var blocks = scanFencedBlocks(lines)

	var chosen = -1
	for i := len(blocks) - 1; i >= 0; i-- {
		switch blocks[i].Lang {
		case ``, `js`, `javascript`:
			chosen = i
		}
		if chosen >= 0 {
			break
		}
	}
	if chosen < 0 {
		return nil
	}

	var block = blocks[chosen]

	var j = block.OpenLineIdx - 1
	for j >= 0 && strings.TrimSpace(lines[j]) == `` {
		j--
	}
	if j >= 0 {
		if m := replyHeaderRe.FindStringSubmatch(lines[j]); m != nil {
			if strings.EqualFold(strings.TrimSpace(m[1]), pageName) {
				return nil
			}
		}
	}

	var code = block.Body
	if strings.TrimSpace(code) == `` {
		return nil
	}
	if firstLineIsReplyHeader(code) {
		return nil
	}

	return &parsedRequest{
		Agent:     `agent`,
		Target:    pageName,
		Time:      ``,
		Code:      code,
		HasFooter: false,
	}
}
