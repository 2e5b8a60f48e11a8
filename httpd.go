// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	libhttp "git.sr.ht/~shulhan/pakakeh.go/lib/http"
	"git.sr.ht/~shulhan/pakakeh.go/lib/mlog"
)

// pathPoll is the single path shared by the long-poll GET and the result
// POST, per spec.md §6.
const pathPoll = `/daebug`

// apiEnvironment exposes a read-only EnvironmentInfo snapshot, a
// debugging aid for operators (spec.md §9 supplemented features).
const apiEnvironment = `/daebug/api/environment`

// List of known HTTP request parameters understood by the dispatcher.
const (
	paramName = `name`
	paramURL  = `url`
)

// controlPayload is the subset of a POST body needed to route between the
// control messages (worker-timeout, worker-init, background-flush) and an
// ordinary job Result, per spec.md §4.F.
type controlPayload struct {
	Type             string            `json:"type"`
	Ms               int64             `json:"ms,omitempty"`
	BackgroundEvents []BackgroundEvent `json:"backgroundEvents,omitempty"`
}

// initHTTPd wires the HTTP surface onto b.httpd: the long-poll GET, the
// result POST, and the operator-facing environment endpoint. The static
// file surface (import-map/script injection) is wired separately through
// ServerOptions.HandleFS; see assets.go.
func (b *Broker) initHTTPd() (err error) {
	var logp = `initHTTPd`

	err = b.httpd.RegisterEndpoint(&libhttp.Endpoint{
		Method:       libhttp.RequestMethodGet,
		Path:         pathPoll,
		RequestType:  libhttp.RequestTypeQuery,
		ResponseType: libhttp.ResponseTypeJSON,
		Call:         b.handlePoll,
	})
	if err != nil {
		return fmt.Errorf(`%s: %w`, logp, err)
	}

	err = b.httpd.RegisterEndpoint(&libhttp.Endpoint{
		Method:       libhttp.RequestMethodPost,
		Path:         pathPoll,
		RequestType:  libhttp.RequestTypeJSON,
		ResponseType: libhttp.ResponseTypeJSON,
		Call:         b.handleResult,
	})
	if err != nil {
		return fmt.Errorf(`%s: %w`, logp, err)
	}

	err = b.httpd.RegisterEndpoint(&libhttp.Endpoint{
		Method:       libhttp.RequestMethodGet,
		Path:         apiEnvironment,
		RequestType:  libhttp.RequestTypeNone,
		ResponseType: libhttp.ResponseTypeJSON,
		Call:         b.apiEnvironment,
	})
	if err != nil {
		return fmt.Errorf(`%s: %w`, logp, err)
	}

	return nil
}

// handlePoll implements the long-poll GET: §4.F step 1-5.
func (b *Broker) handlePoll(epr *libhttp.EndpointRequest) (respBody []byte, err error) {
	var name = epr.HttpRequest.URL.Query().Get(paramName)
	if len(name) == 0 {
		return nil, errInvalidPageName(name)
	}
	var pageURL = epr.HttpRequest.URL.Query().Get(paramURL)

	var page *Page
	page, _, err = b.reg.getOrCreate(name, pageURL)
	if err != nil {
		return nil, fmt.Errorf(`handlePoll: %w`, err)
	}
	b.fw.watchPage(page)

	var job = b.jm.get(page.Name)
	if job == nil {
		job = b.jm.waitForJob(page.Name, randomPollTimeout(b.env))
	}

	epr.HttpWriter.Header().Set(libhttp.HeaderContentType, contentTypeJS)

	if job == nil {
		return []byte{}, nil
	}

	b.jm.start(job)
	epr.HttpWriter.Header().Set(`x-job-id`, strconv.FormatInt(job.ID, 10))
	return []byte(job.Code), nil
}

// handleResult implements the result POST: §4.F dispatch by payload.type.
func (b *Broker) handleResult(epr *libhttp.EndpointRequest) (respBody []byte, err error) {
	var name = epr.HttpRequest.URL.Query().Get(paramName)
	if len(name) == 0 {
		return nil, errInvalidPageName(name)
	}

	var ctrl controlPayload
	if uerr := json.Unmarshal(epr.RequestBody, &ctrl); uerr != nil {
		mlog.Outf(`handleResult: %s: malformed body: %s`, name, uerr)
		return okBody(), nil
	}

	switch ctrl.Type {
	case `worker-timeout`:
		if page, ok := b.reg.get(name); ok {
			var note = fmt.Sprintf(`Worker unresponsive for %dms, restarting...`, ctrl.Ms)
			if nerr := appendDiagnosticNote(page, note); nerr != nil {
				mlog.Errf(`handleResult: %s: %s`, name, nerr)
			}
		}
		return okBody(), nil

	case `worker-init`:
		return okBody(), nil

	case `background-flush`:
		if page, ok := b.reg.get(name); ok {
			if nerr := appendBackgroundFlush(page, ctrl.BackgroundEvents); nerr != nil {
				mlog.Errf(`handleResult: %s: %s`, name, nerr)
			}
		}
		return okBody(), nil

	default:
		var result Result
		if uerr := json.Unmarshal(epr.RequestBody, &result); uerr != nil {
			mlog.Outf(`handleResult: %s: malformed result: %s`, name, uerr)
			return okBody(), nil
		}
		if job := b.jm.get(name); job != nil {
			b.jm.finish(job, result)
		}
		return okBody(), nil
	}
}

// apiEnvironment serves a read-only snapshot of every known Page, its
// current Job (if any), and its bounded recent-code ring — an operator
// debugging aid, not part of the browser protocol. It is the only
// endpoint guarded by the admin Client's signature, since it is the only
// one reachable from outside the runtime's own JS client.
func (b *Broker) apiEnvironment(epr *libhttp.EndpointRequest) (respBody []byte, err error) {
	var sign = epr.HttpRequest.Header.Get(HeaderNameXDaebugSign)
	if !verifySign(nil, b.env.secretb, sign) {
		return nil, &errUnauthorized
	}

	var info = EnvironmentInfo{
		Name:      b.env.Name,
		StartTime: b.reg.startTime,
	}

	for _, page := range b.reg.all() {
		var pi = PageInfo{
			Name:       page.Name,
			URL:        page.URL,
			State:      page.State,
			LastSeen:   page.LastSeen,
			RecentCode: page.recentSnippets(),
		}
		if job := b.jm.get(page.Name); job != nil {
			pi.Job = &JobInfo{
				ID:          job.ID,
				Agent:       job.Agent,
				RequestedAt: job.RequestedAt,
				StartedAt:   job.StartedAt,
			}
		}
		info.Pages = append(info.Pages, pi)
	}

	var res = libhttp.EndpointResponse{}
	res.Code = http.StatusOK
	res.Data = info
	return json.Marshal(&res)
}

// randomPollTimeout returns a duration uniformly randomized between
// env.PollTimeoutMin and env.PollTimeoutMax, per spec.md §4.E/§5.
func randomPollTimeout(env *Env) time.Duration {
	var spread = env.PollTimeoutMax - env.PollTimeoutMin
	if spread <= 0 {
		return env.PollTimeoutMin
	}
	return env.PollTimeoutMin + time.Duration(rand.Int63n(int64(spread)))
}

// okBody is the literal 200 response body used for POST endpoints whose
// semantic target may already be gone — spec.md §7: "HTTP always
// responds (200 'ok' for POSTs whose semantic target is gone)".
func okBody() []byte {
	var res = libhttp.EndpointResponse{}
	res.Code = http.StatusOK
	var b, _ = json.Marshal(&res)
	return b
}
