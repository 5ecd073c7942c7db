package types

// ResolveRequest asks the host to resolve a catalog class.
type ResolveRequest struct {
	Name string `json:"name" binding:"required"`
}

// Navigation carries the page's navigation journal state.
type Navigation struct {
	State string `json:"state"`
}
