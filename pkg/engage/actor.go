package engage

import "github.com/shiftline/marketplace/pkg/models"

// Actor is the authenticated caller of a transition: the id and role the
// identity provider vouched for. Every guard in the lifecycle components
// trusts this pair and nothing else about the request.
type Actor struct {
	ID   int64
	Role models.Role
}
