package session

import (
	"strings"

	"github.com/google/uuid"
)

type ItemKind string

const (
	ItemObject   ItemKind = "object"
	ItemClothing ItemKind = "clothing"
	ItemBodyPart ItemKind = "bodypart"
	ItemOther    ItemKind = "other"
)

// Item is one inventory entry. Layer is set for clothing and body parts,
// AttachPoint for attached objects.
type Item struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Kind        ItemKind  `json:"kind"`
	Layer       string    `json:"layer,omitempty"`
	AttachPoint string    `json:"attach_point,omitempty"`
	Worn        bool      `json:"worn"`
}

type Folder struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Items   []Item    `json:"items"`
	Folders []*Folder `json:"folders"`
}

// Find walks path (folder names separated by "/") below f. Matching is
// case-insensitive.
func (f *Folder) Find(path string) (*Folder, bool) {
	cur := f
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		next := cur.child(part)
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (f *Folder) child(name string) *Folder {
	for _, c := range f.Folders {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Walk visits f and every descendant depth first. path is the slash
// separated location relative to f; f itself has the empty path. Returning
// false from visit stops the walk.
func (f *Folder) Walk(visit func(path string, folder *Folder) bool) {
	type frame struct {
		path   string
		folder *Folder
	}
	stack := []frame{{"", f}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(top.path, top.folder) {
			return
		}
		for i := len(top.folder.Folders) - 1; i >= 0; i-- {
			c := top.folder.Folders[i]
			p := c.Name
			if top.path != "" {
				p = top.path + "/" + c.Name
			}
			stack = append(stack, frame{p, c})
		}
	}
}

// AllItems returns the items in f and all of its descendants.
func (f *Folder) AllItems() []Item {
	var out []Item
	f.Walk(func(_ string, folder *Folder) bool {
		out = append(out, folder.Items...)
		return true
	})
	return out
}

// Clone returns a deep copy.
func (f *Folder) Clone() *Folder {
	if f == nil {
		return nil
	}
	c := &Folder{ID: f.ID, Name: f.Name, Items: append([]Item(nil), f.Items...)}
	for _, sub := range f.Folders {
		c.Folders = append(c.Folders, sub.Clone())
	}
	return c
}

// Layers are the wearable layers in the order used by outfit bitmaps.
var Layers = []string{
	"gloves", "jacket", "pants", "shirt", "shoes", "skirt", "socks",
	"underpants", "undershirt", "skin", "eyes", "hair", "shape", "alpha",
	"tattoo", "physics", "universal",
}

// AttachPoints are the attachment points in the order used by attachment
// bitmaps. Index 0 is unused, matching grid numbering.
var AttachPoints = []string{
	"none", "chest", "skull", "left shoulder", "right shoulder", "left hand",
	"right hand", "left foot", "right foot", "spine", "pelvis", "mouth",
	"chin", "left ear", "right ear", "left eyeball", "right eyeball", "nose",
	"r upper arm", "r forearm", "l upper arm", "l forearm", "right hip",
	"r upper leg", "r lower leg", "left hip", "l upper leg", "l lower leg",
	"stomach", "left pec", "right pec", "center 2", "top right", "top",
	"top left", "center", "bottom left", "bottom", "bottom right", "neck",
	"avatar center",
}

// IsLayer reports whether name is a wearable layer.
func IsLayer(name string) bool {
	return indexOf(Layers, name) >= 0
}

// IsAttachPoint reports whether name is an attachment point.
func IsAttachPoint(name string) bool {
	return indexOf(AttachPoints, name) > 0
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if strings.EqualFold(v, name) {
			return i
		}
	}
	return -1
}
