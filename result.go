// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

// Result is the payload a runtime POSTs back after executing a Job's code.
type Result struct {
	Value            any               `json:"value,omitempty"`
	Error            string            `json:"error,omitempty"`
	JobID            string            `json:"jobId,omitempty"`
	Type             string            `json:"type,omitempty"`
	BackgroundEvents []BackgroundEvent `json:"backgroundEvents,omitempty"`

	// Errors is a deprecated flat string list accepted for back-compat
	// with older runtimes; when present and Error is empty, its first
	// element is treated as the error message.
	Errors []string `json:"errors,omitempty"`

	OK bool `json:"ok"`
}

// errorMessage returns the effective error message for a failed Result,
// preferring Error and falling back to the deprecated Errors list.
func (r Result) errorMessage() string {
	if len(r.Error) > 0 {
		return r.Error
	}
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	return `unknown error`
}

// BackgroundEvent is a console or error observation the runtime captured
// outside the result value of the current job.
type BackgroundEvent struct {
	Type    string `json:"type"`
	Level   string `json:"level,omitempty"`
	Source  string `json:"source,omitempty"`
	TS      string `json:"ts,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Caller  string `json:"caller,omitempty"`
}
