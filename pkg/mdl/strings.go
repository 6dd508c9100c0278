package mdl

import (
	"bytes"
	"fmt"
)

// StringCategory orders names inside the string blob.
type StringCategory int

// Categories are laid out in this order.
const (
	CategoryAttribute StringCategory = iota
	CategoryBone
	CategoryMaterial
	CategoryShape
	CategoryExtra
	categoryCount
)

// String returns the category name.
func (c StringCategory) String() string {
	switch c {
	case CategoryAttribute:
		return "Attribute"
	case CategoryBone:
		return "Bone"
	case CategoryMaterial:
		return "Material"
	case CategoryShape:
		return "Shape"
	case CategoryExtra:
		return "Extra"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// StringTable collects names by category and deduplicates them.
// A name added to several categories is stored once, in the first
// category (by layout order) that holds it.
type StringTable struct {
	names  [categoryCount][]string
	seen   [categoryCount]map[string]struct{}
	frozen bool
}

// NewStringTable returns an empty table.
func NewStringTable() *StringTable {
	t := &StringTable{}
	for i := range t.seen {
		t.seen[i] = make(map[string]struct{})
	}
	return t
}

// Add appends name to category unless it is already present there.
// Add panics once the table has been frozen.
func (t *StringTable) Add(category StringCategory, name string) {
	if t.frozen {
		panic("mdl: StringTable.Add after Freeze")
	}
	if category < 0 || category >= categoryCount {
		category = CategoryExtra
	}
	if _, ok := t.seen[category][name]; ok {
		return
	}
	t.seen[category][name] = struct{}{}
	t.names[category] = append(t.names[category], name)
}

// Names returns the names added to category in insertion order.
func (t *StringTable) Names(category StringCategory) []string {
	if category < 0 || category >= categoryCount {
		return nil
	}
	return t.names[category]
}

// Freeze builds the blob. The table rejects further additions.
func (t *StringTable) Freeze() *StringBlob {
	t.frozen = true

	blob := &StringBlob{offsets: make(map[string]uint32)}
	var buf bytes.Buffer
	for c := StringCategory(0); c < categoryCount; c++ {
		for _, name := range t.names[c] {
			if _, dup := blob.offsets[name]; dup {
				continue
			}
			blob.offsets[name] = uint32(buf.Len())
			buf.WriteString(name)
			buf.WriteByte(0)
			blob.count++
		}
	}
	if buf.Len() == 0 {
		buf.WriteByte(0)
	}
	// Blob size stays 4-byte aligned; the padding is extra NULs.
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	blob.data = buf.Bytes()
	return blob
}

// StringBlob is the frozen, NUL-delimited string section.
type StringBlob struct {
	data    []byte
	count   int
	offsets map[string]uint32
}

// Bytes returns the blob including its trailing NUL padding.
func (b *StringBlob) Bytes() []byte { return b.data }

// Count returns the number of distinct strings.
func (b *StringBlob) Count() int { return b.count }

// Size returns the blob length in bytes.
func (b *StringBlob) Size() int { return len(b.data) }

// Offset returns the byte offset of name.
func (b *StringBlob) Offset(name string) (uint32, bool) {
	off, ok := b.offsets[name]
	return off, ok
}

// MustOffset returns the byte offset of name, panicking if it was never added.
func (b *StringBlob) MustOffset(name string) uint32 {
	off, ok := b.offsets[name]
	if !ok {
		panic(fmt.Sprintf("mdl: string %q not in blob", name))
	}
	return off
}

func stringAt(blob []byte, offset uint32) string {
	if int(offset) >= len(blob) {
		return ""
	}
	rest := blob[offset:]
	if end := bytes.IndexByte(rest, 0); end >= 0 {
		return string(rest[:end])
	}
	return string(rest)
}
