// Package bim is the client for the source-of-truth building model platform.
//
// It exposes the three operations the reconciliation engine consumes: the
// nested location hierarchy, the asset-bearing entities of a model, and the
// write-back channel for pushing assigned target identifiers into the model.
package bim

// LocationNode is one node of the nested location hierarchy as the platform
// returns it. Children nest arbitrarily deep; the engine flattens the tree
// into an index before use.
//
// ID may be empty: the modeling tool emits unidentified grouping nodes, which
// the index builder skips.
type LocationNode struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Properties []Property     `json:"properties"`
	Children   []LocationNode `json:"children"`
}

// Property is a named value attached to a location node.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Property returns the named property's value, or "" when absent.
func (n LocationNode) Property(name string) string {
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// Entity is one asset-bearing entity row from a model query.
type Entity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Class      string            `json:"class"`
	LocationID string            `json:"locationId"`
	Properties map[string]string `json:"properties"`
}

// PropertyWrite is a single pending property assignment for write-back into
// the source model.
type PropertyWrite struct {
	EntityID    string
	PropertySet string
	Property    string
	Value       string
}

// ChangeError reports one entity the platform refused to update during
// write-back. The engine logs these; it never retries them.
type ChangeError struct {
	EntityID string `json:"entityId"`
	Message  string `json:"message"`
}
