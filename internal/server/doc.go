// Package server hosts the Fiber HTTP service and the request middleware
// chain. It wires the path matcher and version resolver into the terminal
// response decision (versioned redirect, root bounce, or pass-through) while
// depending only on narrow interfaces, so tests can inject fake resolvers and
// fallback handlers. The shared outbound http.Client for registry and
// fallback traffic is also constructed here.
package server
