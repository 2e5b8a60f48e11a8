// SPDX-FileCopyrightText: 2023 M. Shulhan <ms@kilabit.info>
// SPDX-License-Identifier: GPL-3.0-or-later

package daebug

import libhttp "git.sr.ht/~shulhan/pakakeh.go/lib/http"

// ClientOptions define the options for the admin Client.
type ClientOptions struct {
	// Secret signs every request against the broker's configured
	// Env.Secret.
	Secret string

	libhttp.ClientOptions
}
