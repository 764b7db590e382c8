// Package api serves the wishlist HTTP surface on a chi router.
//
// The caller's user id is read from Config.UserHeader (X-User-ID by default)
// and trusted as is. The listener must only be reachable through the
// authenticating proxy, and that proxy must set or strip the header on every
// request; otherwise any client can act as any user, including choosing the
// account a guest wishlist merges into.
package api
