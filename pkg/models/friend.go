package models

// Friend edge states.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
)

// FriendEdge is a symmetric relation between two identities. A and B are
// stored in canonical (sorted, lowercased) order; RequestedBy records which
// side initiated so acceptance can be restricted to the other side.
type FriendEdge struct {
	A           string `json:"a"`
	B           string `json:"b"`
	State       string `json:"state"`
	RequestedBy string `json:"requested_by"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Peer returns the other side of the edge for id, or "" if id is not on the
// edge.
func (e *FriendEdge) Peer(id string) string {
	switch id {
	case e.A:
		return e.B
	case e.B:
		return e.A
	}
	return ""
}
