//go:build go1.23

package httpapi

import "net/http"

func setPartitioned(c *http.Cookie, v bool) {
	c.Partitioned = v
}
