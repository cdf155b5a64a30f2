// Package server hosts the Fiber HTTP service: the request-ID middleware, the
// catch-all route that hands requests to the proxy handler, and the shared
// upstream http.Client. Diagnostics routes under "/-/" are left to the
// routes subpackage so that the proxy never sees them.
package server
