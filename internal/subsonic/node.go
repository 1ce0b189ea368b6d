package subsonic

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is the typed response tree handlers build instead of ad-hoc
// maps. Scalar fields become XML attributes (plain JSON fields),
// single children become nested elements, appended children become
// repeated same-named elements (JSON arrays). One tree, three
// renderings.
type Node struct {
	attrs    []attr
	children []*child
}

type attr struct {
	name  string
	value any
}

type child struct {
	name string
	node *Node
	list bool
}

func newNode() *Node { return &Node{} }

// Set adds a scalar field. Insertion order is preserved in the XML
// rendering.
func (n *Node) Set(name string, value any) *Node {
	n.attrs = append(n.attrs, attr{name: name, value: value})
	return n
}

// Child adds a nested element that appears exactly once.
func (n *Node) Child(name string) *Node {
	c := &child{name: name, node: newNode()}
	n.children = append(n.children, c)
	return c.node
}

// Append adds one element of a repeated list. Repeated children render
// as JSON arrays even when only one was appended.
func (n *Node) Append(name string) *Node {
	c := &child{name: name, node: newNode(), list: true}
	n.children = append(n.children, c)
	return c.node
}

// writeXML renders the node as <name .../> into b. Text inserted into
// the output is escaped for XML attribute context.
func (n *Node) writeXML(b *strings.Builder, name string) {
	b.WriteByte('<')
	b.WriteString(name)
	for _, a := range n.attrs {
		b.WriteByte(' ')
		b.WriteString(a.name)
		b.WriteString(`="`)
		b.WriteString(escapeXML(formatValue(a.value)))
		b.WriteByte('"')
	}
	if len(n.children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, c := range n.children {
		c.node.writeXML(b, c.name)
	}
	b.WriteString("</")
	b.WriteString(name)
	b.WriteByte('>')
}

// jsonValue renders the node as the map structure fed to json.Marshal.
// Scalars keep their native JSON types.
func (n *Node) jsonValue() map[string]any {
	m := make(map[string]any, len(n.attrs)+len(n.children))
	for _, a := range n.attrs {
		m[a.name] = a.value
	}
	for _, c := range n.children {
		if c.list {
			slice, _ := m[c.name].([]any)
			m[c.name] = append(slice, c.node.jsonValue())
		} else {
			m[c.name] = c.node.jsonValue()
		}
	}
	return m
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string { return xmlEscaper.Replace(s) }

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
