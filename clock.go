// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"fmt"
	"strings"
	"time"
)

// TimeNow returns the current time. It is a package variable, following
// the teacher's own convention (job_base.go, job_http.go), so tests can
// substitute a fixed clock.
var TimeNow = time.Now

// sanitizeName lowercases s, collapses runs of non-alphanumeric characters
// to a single '-', and strips leading/trailing '-', yielding a
// DNS-label-like token suitable as a file basename.
//
// sanitizeName is idempotent: sanitizeName(sanitizeName(s)) == sanitizeName(s).
func sanitizeName(s string) string {
	var b strings.Builder
	var pendingDash bool
	for _, c := range strings.ToLower(s) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(c)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// clockFmt formats ts as "HH:MM:SS" in local time.
func clockFmt(ts time.Time) string {
	return ts.Local().Format(`15:04:05`)
}

// durationFmt formats d as "<n>ms" when d is under two seconds, otherwise
// as "<x.y>s".
func durationFmt(d time.Duration) string {
	var ms = d.Milliseconds()
	if ms < 2000 {
		return fmt.Sprintf(`%dms`, ms)
	}
	return fmt.Sprintf(`%.1fs`, d.Seconds())
}
