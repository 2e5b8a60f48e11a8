// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"net/http"

	liberrors "git.sr.ht/~shulhan/pakakeh.go/lib/errors"
)

// errJobTimeout is the typed error for a job that ran longer than
// Env.JobTimeout. The timeout reply that jobManager.onTimeout writes into
// the page file carries its own message and does not use this value.
var errJobTimeout = liberrors.E{
	Code:    http.StatusGatewayTimeout,
	Name:    `ERR_JOB_TIMEOUT`,
	Message: `job timed out`,
}

// errJobBusy is the typed error for a new request against a page that
// already has a job in flight (at-most-one-job-per-page). The file watcher
// drops such a request silently and does not return this value.
var errJobBusy = liberrors.E{
	Code:    http.StatusTooManyRequests,
	Name:    `ERR_JOB_BUSY`,
	Message: `a job is already running for this page`,
}

// errUnauthorized guards the admin Client endpoints: a missing or invalid
// X-Daebug-Sign header.
var errUnauthorized = liberrors.E{
	Code:    http.StatusUnauthorized,
	Name:    `ERR_UNAUTHORIZED`,
	Message: `invalid or missing signature`,
}

func errPageNotFound(name string) error {
	return &liberrors.E{
		Code:    http.StatusNotFound,
		Name:    `ERR_PAGE_NOT_FOUND`,
		Message: `page not found: ` + name,
	}
}

func errJobNotFound(id string) error {
	return &liberrors.E{
		Code:    http.StatusNotFound,
		Name:    `ERR_JOB_NOT_FOUND`,
		Message: `job not found: ` + id,
	}
}

func errInvalidPageName(name string) error {
	return &liberrors.E{
		Code:    http.StatusBadRequest,
		Name:    `ERR_INVALID_PAGE_NAME`,
		Message: `invalid or empty page name: ` + name,
	}
}
