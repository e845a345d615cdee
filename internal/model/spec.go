package model

// SpecNode is either a leaf value or a named group of child nodes.
// Groups remember the order in which children were first added.
type SpecNode struct {
	leaf     bool
	value    string
	names    []string
	children map[string]*SpecNode
}

func Leaf(value string) *SpecNode {
	return &SpecNode{leaf: true, value: value}
}

func NewGroup() *SpecNode {
	return &SpecNode{children: map[string]*SpecNode{}}
}

func (n *SpecNode) IsLeaf() bool {
	return n != nil && n.leaf
}

func (n *SpecNode) Value() string {
	if n == nil {
		return ""
	}
	return n.value
}

// Set adds or replaces a child. A replaced child keeps its original position.
// Calling Set on a leaf is a no-op.
func (n *SpecNode) Set(name string, child *SpecNode) {
	if n == nil || n.leaf || child == nil {
		return
	}
	if _, ok := n.children[name]; !ok {
		n.names = append(n.names, name)
	}
	n.children[name] = child
}

func (n *SpecNode) Get(name string) (*SpecNode, bool) {
	if n == nil || n.leaf {
		return nil, false
	}
	c, ok := n.children[name]
	return c, ok
}

// Names returns child names in insertion order.
func (n *SpecNode) Names() []string {
	if n == nil || n.leaf {
		return nil
	}
	out := make([]string, len(n.names))
	copy(out, n.names)
	return out
}

func (n *SpecNode) Len() int {
	if n == nil || n.leaf {
		return 0
	}
	return len(n.names)
}

// Walk visits every leaf depth-first, passing the path of names leading to it.
// The path slice is reused between calls.
func (n *SpecNode) Walk(fn func(path []string, value string)) {
	n.walk(nil, fn)
}

func (n *SpecNode) walk(path []string, fn func([]string, string)) {
	if n == nil {
		return
	}
	if n.leaf {
		fn(path, n.value)
		return
	}
	for _, name := range n.names {
		n.children[name].walk(append(path, name), fn)
	}
}
