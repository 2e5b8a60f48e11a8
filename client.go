// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import (
	"encoding/json"
	"fmt"
	"net/http"

	libhttp "git.sr.ht/~shulhan/pakakeh.go/lib/http"
)

// Client is a thin admin HTTP client for a running broker: it lists known
// pages and inspects a page's current job through the
// "/daebug/api/environment" introspection endpoint. It carries none of the
// browser-facing long-poll/result protocol — that is driven by the
// runtime's own JS client, not this Go type.
type Client struct {
	*libhttp.Client
	opts ClientOptions
}

// NewClient creates a new admin Client.
func NewClient(opts ClientOptions) (cl *Client) {
	cl = &Client{
		opts:   opts,
		Client: libhttp.NewClient(opts.ClientOptions),
	}
	return cl
}

// Pages fetches the current EnvironmentInfo snapshot and returns its list
// of known pages.
func (cl *Client) Pages() (pages []PageInfo, err error) {
	var logp = `Pages`

	var info, ierr = cl.environment()
	if ierr != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, ierr)
	}
	return info.Pages, nil
}

// Job returns the current job for the page named name, or nil if the page
// has no job in flight.
func (cl *Client) Job(name string) (job *JobInfo, err error) {
	var logp = `Job`

	var info, ierr = cl.environment()
	if ierr != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, ierr)
	}

	for _, page := range info.Pages {
		if page.Name == name {
			return page.Job, nil
		}
	}
	return nil, errPageNotFound(name)
}

func (cl *Client) environment() (info *EnvironmentInfo, err error) {
	var logp = `environment`

	var sign = Sign(nil, []byte(cl.opts.Secret))
	var header = http.Header{}
	header.Set(HeaderNameXDaebugSign, sign)

	var clientReq = libhttp.ClientRequest{
		Path:   apiEnvironment,
		Header: header,
	}

	var clientResp *libhttp.ClientResponse
	clientResp, err = cl.Client.Get(clientReq)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}

	info = &EnvironmentInfo{}
	var res = &libhttp.EndpointResponse{
		Data: info,
	}
	err = json.Unmarshal(clientResp.Body, res)
	if err != nil {
		return nil, fmt.Errorf(`%s: %w`, logp, err)
	}
	if res.Code != http.StatusOK {
		return nil, res
	}
	return info, nil
}
