// Package httputil holds the JSON response helpers used by the API handlers.
package httputil
