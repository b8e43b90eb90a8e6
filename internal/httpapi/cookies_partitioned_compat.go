//go:build !go1.23

package httpapi

import "net/http"

// http.Cookie.Partitioned does not exist before go1.23; the attribute cannot
// be set on older toolchains.
func setPartitioned(c *http.Cookie, v bool) {}
