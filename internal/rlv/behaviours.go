package rlv

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"corrade/internal/model"
	"corrade/internal/session"
)

const (
	viewerVersion = "3.4.3"
	versionNumber = "3040300"
)

type call struct {
	Command
	Object uuid.UUID
}

type handler func(ctx context.Context, e *Engine, c call) error

var behaviours = map[string]handler{
	"version":       version("RestrainedLife"),
	"versionnew":    version("RestrainedLove"),
	"versionnum":    versionNum,
	"versionnumbl":  versionNum,
	"getgroup":      getGroup,
	"setgroup":      setGroup,
	"getsitid":      getSitID,
	"sit":           sit,
	"unsit":         unsit,
	"setrot":        setRot,
	"tpto":          tpTo,
	"getoutfit":     getOutfit,
	"getattach":     getAttach,
	"attach":        attach(false, true),
	"attachover":    attach(false, false),
	"attachall":     attach(true, true),
	"attachallover": attach(true, false),
	"detach":        detach(false),
	"detachall":     detach(true),
	"remoutfit":     remOutfit,
	"detachme":      detachMe,
	"getinv":        getInv,
	"getinvworn":    getInvWorn,
	"findfolder":    findFolder,
	"getpath":       getPath(false),
	"getpathnew":    getPath(true),
	"getstatus":     getStatus(false),
	"getstatusall":  getStatus(true),
}

// Behaviours returns the names of the implemented behaviours.
func Behaviours() []string {
	out := make([]string, 0, len(behaviours)+1)
	for name := range behaviours {
		out = append(out, name)
	}
	return append(out, "clear")
}

func version(brand string) handler {
	return func(ctx context.Context, e *Engine, c call) error {
		return e.reply(ctx, c, fmt.Sprintf("%s viewer v%s (%s)", brand, viewerVersion, e.opts.Version))
	}
}

func versionNum(ctx context.Context, e *Engine, c call) error {
	return e.reply(ctx, c, versionNumber)
}

func getGroup(ctx context.Context, e *Engine, c call) error {
	active := e.opts.Session.Self().ActiveGroup
	if active == uuid.Nil {
		return e.reply(ctx, c, "none")
	}
	name, err := e.opts.Session.GroupName(ctx, active)
	if err != nil {
		return err
	}
	return e.reply(ctx, c, name)
}

func setGroup(ctx context.Context, e *Engine, c call) error {
	if err := forced(c); err != nil {
		return err
	}
	if c.Option == "" || strings.EqualFold(c.Option, "none") {
		return e.opts.Session.ActivateGroup(ctx, uuid.Nil)
	}
	id, err := uuid.Parse(c.Option)
	if err != nil {
		if id, err = e.opts.Session.GroupID(ctx, c.Option); err != nil {
			return err
		}
	}
	return e.opts.Session.ActivateGroup(ctx, id)
}

func getSitID(ctx context.Context, e *Engine, c call) error {
	return e.reply(ctx, c, e.opts.Session.Self().SittingOn.String())
}

func sit(ctx context.Context, e *Engine, c call) error {
	if err := forced(c); err != nil {
		return err
	}
	id, err := uuid.Parse(c.Option)
	if err != nil {
		return fmt.Errorf("sit target %q: %w", c.Option, ErrBadParam)
	}
	return e.opts.Session.Sit(ctx, id)
}

func unsit(ctx context.Context, e *Engine, c call) error {
	if err := forced(c); err != nil {
		return err
	}
	return e.opts.Session.Stand(ctx)
}

func setRot(ctx context.Context, e *Engine, c call) error {
	if err := forced(c); err != nil {
		return err
	}
	rad, err := strconv.ParseFloat(c.Option, 64)
	if err != nil {
		return fmt.Errorf("rotation %q: %w", c.Option, ErrBadParam)
	}
	return e.opts.Session.SetRotation(ctx, rad)
}

// tpTo accepts x/y/z in the current region or region/x/y/z.
func tpTo(ctx context.Context, e *Engine, c call) error {
	if err := forced(c); err != nil {
		return err
	}
	parts := strings.Split(c.Option, "/")
	region := ""
	if len(parts) == 4 {
		region, parts = parts[0], parts[1:]
	}
	if len(parts) != 3 {
		return fmt.Errorf("destination %q: %w", c.Option, ErrBadParam)
	}
	var coords [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("destination %q: %w", c.Option, ErrBadParam)
		}
		coords[i] = v
	}
	return e.opts.Session.Teleport(ctx, region, model.Vector3{X: coords[0], Y: coords[1], Z: coords[2]})
}

func getOutfit(ctx context.Context, e *Engine, c call) error {
	worn, err := e.opts.Session.Worn(ctx)
	if err != nil {
		return err
	}
	layers := map[string]bool{}
	for _, it := range worn {
		if it.Kind == session.ItemClothing || it.Kind == session.ItemBodyPart {
			layers[strings.ToLower(it.Layer)] = true
		}
	}
	if c.Option != "" {
		if !session.IsLayer(c.Option) {
			return fmt.Errorf("layer %q: %w", c.Option, ErrBadParam)
		}
		return e.reply(ctx, c, bit(layers[strings.ToLower(c.Option)]))
	}
	var b strings.Builder
	for _, l := range session.Layers {
		b.WriteString(bit(layers[l]))
	}
	return e.reply(ctx, c, b.String())
}

func getAttach(ctx context.Context, e *Engine, c call) error {
	worn, err := e.opts.Session.Worn(ctx)
	if err != nil {
		return err
	}
	points := map[string]bool{}
	for _, it := range worn {
		if it.Kind == session.ItemObject && it.AttachPoint != "" {
			points[strings.ToLower(it.AttachPoint)] = true
		}
	}
	if c.Option != "" {
		if !session.IsAttachPoint(c.Option) {
			return fmt.Errorf("attachment point %q: %w", c.Option, ErrBadParam)
		}
		return e.reply(ctx, c, bit(points[strings.ToLower(c.Option)]))
	}
	var b strings.Builder
	for i, p := range session.AttachPoints {
		b.WriteString(bit(i > 0 && points[p]))
	}
	return e.reply(ctx, c, b.String())
}

func attach(recursive, replace bool) handler {
	return func(ctx context.Context, e *Engine, c call) error {
		if err := forced(c); err != nil {
			return err
		}
		folder, err := e.folder(ctx, c.Option)
		if err != nil {
			return err
		}
		items := folder.Items
		if recursive {
			items = folder.AllItems()
		}
		var wearables []uuid.UUID
		for _, it := range items {
			switch it.Kind {
			case session.ItemClothing, session.ItemBodyPart:
				wearables = append(wearables, it.ID)
			case session.ItemObject:
				if err := e.opts.Session.Attach(ctx, it.ID, attachPoint(it, folder.Name), replace); err != nil {
					return err
				}
			}
		}
		if len(wearables) == 0 {
			return nil
		}
		return e.opts.Session.Wear(ctx, wearables, replace)
	}
}

// attachPoint prefers a point named in parentheses in the item name, then
// a folder named after a point, then the item's last known point.
func attachPoint(it session.Item, folderName string) string {
	if open := strings.LastIndex(it.Name, "("); open >= 0 {
		if end := strings.Index(it.Name[open:], ")"); end > 0 {
			if p := it.Name[open+1 : open+end]; session.IsAttachPoint(p) {
				return strings.ToLower(p)
			}
		}
	}
	if session.IsAttachPoint(folderName) {
		return strings.ToLower(folderName)
	}
	return it.AttachPoint
}

func detach(recursive bool) handler {
	return func(ctx context.Context, e *Engine, c call) error {
		if err := forced(c); err != nil {
			return err
		}
		var ids []uuid.UUID
		switch {
		case c.Option == "" || (!recursive && session.IsAttachPoint(c.Option)):
			worn, err := e.opts.Session.Worn(ctx)
			if err != nil {
				return err
			}
			for _, it := range worn {
				if it.Kind != session.ItemObject {
					continue
				}
				if c.Option == "" || strings.EqualFold(it.AttachPoint, c.Option) {
					ids = append(ids, it.ID)
				}
			}
		default:
			folder, err := e.folder(ctx, c.Option)
			if err != nil {
				return err
			}
			items := folder.Items
			if recursive {
				items = folder.AllItems()
			}
			for _, it := range items {
				if it.Worn {
					ids = append(ids, it.ID)
				}
			}
		}
		if len(ids) == 0 {
			return nil
		}
		return e.opts.Session.Detach(ctx, ids)
	}
}

func remOutfit(ctx context.Context, e *Engine, c call) error {
	if err := forced(c); err != nil {
		return err
	}
	if c.Option != "" && !session.IsLayer(c.Option) {
		return fmt.Errorf("layer %q: %w", c.Option, ErrBadParam)
	}
	worn, err := e.opts.Session.Worn(ctx)
	if err != nil {
		return err
	}
	var ids []uuid.UUID
	for _, it := range worn {
		if it.Kind != session.ItemClothing {
			continue
		}
		if c.Option == "" || strings.EqualFold(it.Layer, c.Option) {
			ids = append(ids, it.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return e.opts.Session.Detach(ctx, ids)
}

func detachMe(ctx context.Context, e *Engine, c call) error {
	if err := forced(c); err != nil {
		return err
	}
	return e.opts.Session.Detach(ctx, []uuid.UUID{c.Object})
}

func getInv(ctx context.Context, e *Engine, c call) error {
	folder, err := e.folder(ctx, c.Option)
	if err != nil {
		return err
	}
	var names []string
	for _, f := range folder.Folders {
		if !hidden(f.Name) {
			names = append(names, f.Name)
		}
	}
	return e.reply(ctx, c, strings.Join(names, ","))
}

// getInvWorn answers "|XY,name|XY,..." where X describes the folder's own
// items and Y its descendants: 0 nothing wearable, 1 none worn, 2 some
// worn, 3 all worn.
func getInvWorn(ctx context.Context, e *Engine, c call) error {
	folder, err := e.folder(ctx, c.Option)
	if err != nil {
		return err
	}
	entries := []string{"|" + wornCode(folder)}
	for _, f := range folder.Folders {
		if !hidden(f.Name) {
			entries = append(entries, f.Name+"|"+wornCode(f))
		}
	}
	return e.reply(ctx, c, strings.Join(entries, ","))
}

func wornCode(f *session.Folder) string {
	var nested []session.Item
	for _, sub := range f.Folders {
		nested = append(nested, sub.AllItems()...)
	}
	return wornDigit(f.Items) + wornDigit(nested)
}

func wornDigit(items []session.Item) string {
	total, worn := 0, 0
	for _, it := range items {
		if it.Kind == session.ItemOther {
			continue
		}
		total++
		if it.Worn {
			worn++
		}
	}
	switch {
	case total == 0:
		return "0"
	case worn == 0:
		return "1"
	case worn < total:
		return "2"
	default:
		return "3"
	}
}

func findFolder(ctx context.Context, e *Engine, c call) error {
	root, err := e.opts.Session.SharedFolder(ctx)
	if err != nil {
		return err
	}
	var parts []string
	for _, p := range strings.Split(strings.ToLower(c.Option), "&&") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return fmt.Errorf("empty search: %w", ErrBadParam)
	}
	found := ""
	root.Walk(func(path string, f *session.Folder) bool {
		if path == "" || hidden(f.Name) {
			return true
		}
		name := strings.ToLower(f.Name)
		for _, p := range parts {
			if !strings.Contains(name, p) {
				return true
			}
		}
		found = path
		return false
	})
	return e.reply(ctx, c, found)
}

// getPath reports the shared folder holding the item worn at an attachment
// point or layer. Without an option it looks for the asking object itself.
func getPath(all bool) handler {
	return func(ctx context.Context, e *Engine, c call) error {
		root, err := e.opts.Session.SharedFolder(ctx)
		if err != nil {
			return err
		}
		match := func(it session.Item) bool { return it.ID == c.Object }
		switch {
		case c.Option == "":
		case session.IsAttachPoint(c.Option):
			match = func(it session.Item) bool { return it.Worn && strings.EqualFold(it.AttachPoint, c.Option) }
		case session.IsLayer(c.Option):
			match = func(it session.Item) bool { return it.Worn && strings.EqualFold(it.Layer, c.Option) }
		default:
			return fmt.Errorf("path target %q: %w", c.Option, ErrBadParam)
		}
		var paths []string
		root.Walk(func(path string, f *session.Folder) bool {
			for _, it := range f.Items {
				if match(it) {
					paths = append(paths, path)
					break
				}
			}
			return all || len(paths) == 0
		})
		return e.reply(ctx, c, strings.Join(paths, ","))
	}
}

// getStatus lists "/behaviour:option" for the rules of the asking object,
// or of every object. The option is "filter[;separator]".
func getStatus(all bool) handler {
	return func(ctx context.Context, e *Engine, c call) error {
		filter, sep := c.Option, "/"
		if i := strings.Index(filter, ";"); i >= 0 {
			filter, sep = filter[:i], filter[i+1:]
			if sep == "" {
				sep = "/"
			}
		}
		object := c.Object
		if all {
			object = uuid.Nil
		}
		var b strings.Builder
		for _, r := range e.opts.Rules.List(object) {
			entry := r.Behaviour
			if r.Option != "" {
				entry += ":" + r.Option
			}
			if filter != "" && !strings.Contains(entry, filter) {
				continue
			}
			b.WriteString(sep)
			b.WriteString(entry)
		}
		return e.reply(ctx, c, b.String())
	}
}

// folder resolves path below the shared root.
func (e *Engine) folder(ctx context.Context, path string) (*session.Folder, error) {
	root, err := e.opts.Session.SharedFolder(ctx)
	if err != nil {
		return nil, err
	}
	f, ok := root.Find(path)
	if !ok {
		return nil, fmt.Errorf("folder %q: %w", path, session.ErrNotFound)
	}
	return f, nil
}

func forced(c call) error {
	if !strings.EqualFold(c.Param, "force") {
		return fmt.Errorf("%s expects =force, got %q: %w", c.Behaviour, c.Param, ErrBadParam)
	}
	return nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
