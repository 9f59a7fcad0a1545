// Package resolver contains the decision logic of the service: parsing a
// request path into a package name, resolving that name to a version through
// the cache-then-upstream tier, and reporting the outcome as an explicit
// Resolution value. The HTTP layer maps Resolution onto a redirect or a
// pass-through response; nothing in this package writes HTTP responses.
// Failures inside resolution are absorbed into Unresolved reasons so the
// caller never has to distinguish error shapes.
package resolver
