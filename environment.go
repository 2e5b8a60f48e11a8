// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import "time"

// EnvironmentInfo is the read-only snapshot served on
// "/daebug/api/environment": the set of known pages, each with its current
// job (if any) and a bounded list of recently parsed code snippets. It is
// a debugging aid for operators, not part of the browser protocol and not
// persisted across restarts.
type EnvironmentInfo struct {
	Name      string     `json:"name"`
	StartTime time.Time  `json:"start_time"`
	Pages     []PageInfo `json:"pages"`
}

// PageInfo is the JSON projection of a Page for EnvironmentInfo.
type PageInfo struct {
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	State      string    `json:"state"`
	LastSeen   time.Time `json:"last_seen"`
	Job        *JobInfo  `json:"job,omitempty"`
	RecentCode []string  `json:"recent_code,omitempty"`
}

// JobInfo is the JSON projection of a Job for PageInfo.
type JobInfo struct {
	ID          int64     `json:"id"`
	Agent       string    `json:"agent"`
	RequestedAt time.Time `json:"requested_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}
