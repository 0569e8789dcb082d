package form

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	cssIdent    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	spaceRuns   = regexp.MustCompile(`\s+`)
	opaqueName  = regexp.MustCompile(`^entry\.\d+(_\w+)?$`)
	nameSplit   = regexp.MustCompile(`[_\-.\[\]]+`)
	camelBounds = regexp.MustCompile(`([a-z])([A-Z])`)
)

const maxLabelLength = 200

// Describe walks a rendered DOM snapshot and returns its input-capable
// elements in document order. It never mutates the page.
func Describe(source string) ([]Descriptor, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse form html: %w", err)
	}
	return newWalker(doc).describe(), nil
}

type walker struct {
	elements []*html.Node
	ids      map[string]int
	names    map[string]int
	byID     map[string]*html.Node
	labelFor map[string]*html.Node
}

func newWalker(doc *html.Node) *walker {
	w := &walker{
		ids:      map[string]int{},
		names:    map[string]int{},
		byID:     map[string]*html.Node{},
		labelFor: map[string]*html.Node{},
	}
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			w.elements = append(w.elements, n)
			if id := attr(n, "id"); id != "" {
				w.ids[id]++
				if _, ok := w.byID[id]; !ok {
					w.byID[id] = n
				}
			}
			if name := attr(n, "name"); name != "" {
				w.names[name]++
			}
			if n.DataAtom == atom.Label {
				if target := attr(n, "for"); target != "" {
					if _, ok := w.labelFor[target]; !ok {
						w.labelFor[target] = n
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return w
}

func (w *walker) describe() []Descriptor {
	var out []Descriptor
	seenNames := map[string]bool{}
	seenGroups := map[*html.Node]bool{}

	for _, n := range w.elements {
		switch {
		case n.DataAtom == atom.Input:
			typ := strings.ToLower(attr(n, "type"))
			switch typ {
			case "hidden", "submit", "button", "reset", "image", "file":
				continue
			case "radio", "checkbox":
				name := attr(n, "name")
				key := typ + ":" + name
				if name != "" && seenNames[key] {
					continue
				}
				members := []*html.Node{n}
				if name != "" {
					seenNames[key] = true
					members = w.inputsNamed(typ, name)
				}
				if typ == "checkbox" && len(members) == 1 {
					out = append(out, w.toggle(n))
					continue
				}
				out = append(out, w.inputGroup(typ, name, members))
			default:
				out = append(out, w.textInput(n, typ))
			}
		case n.DataAtom == atom.Textarea:
			d := w.base(n, KindText, ControlTextarea)
			d.Prefilled = strings.TrimSpace(rawText(n)) != ""
			out = append(out, d)
		case n.DataAtom == atom.Select:
			out = append(out, w.nativeSelect(n))
		case role(n) == "radiogroup":
			out = append(out, w.ariaGroup(n, KindRadio, "radio"))
		case role(n) == "listbox":
			out = append(out, w.listbox(n))
		case role(n) == "checkbox" && !isNativeControl(n):
			c := w.checkboxContainer(n)
			if seenGroups[c] {
				continue
			}
			seenGroups[c] = true
			members := findAll(c, func(m *html.Node) bool { return role(m) == "checkbox" })
			if len(members) == 1 {
				out = append(out, w.toggle(n))
				continue
			}
			out = append(out, w.ariaGroup(c, KindCheckbox, "checkbox"))
		case (isEditable(n) || role(n) == "textbox") && !isNativeControl(n) && !hasEditableAncestor(n):
			d := w.base(n, KindText, ControlEditable)
			d.Prefilled = textOf(n) != ""
			out = append(out, d)
		}
	}
	return out
}

func (w *walker) base(n *html.Node, kind InputKind, control Control) Descriptor {
	d := Descriptor{
		Locator:      w.locator(n),
		Name:         attr(n, "name"),
		Autocomplete: strings.ToLower(attr(n, "autocomplete")),
		Placeholder:  clean(attr(n, "placeholder")),
		Kind:         kind,
		Control:      control,
		Hidden:       w.hidden(n),
		Disabled:     w.disabled(n),
	}
	label, starred := w.label(n)
	d.Label = label
	d.Required = starred || hasAttr(n, "required") || strings.EqualFold(attr(n, "aria-required"), "true")
	return d
}

func (w *walker) textInput(n *html.Node, typ string) Descriptor {
	kind := KindText
	switch typ {
	case "", "text", "search", "tel", "url", "number", "password":
	case "email":
		kind = KindEmail
	case "date", "datetime-local", "month", "week":
		kind = KindDate
	default:
		kind = KindUnknown
	}
	d := w.base(n, kind, ControlInput)
	d.Prefilled = strings.TrimSpace(attr(n, "value")) != ""
	return d
}

func (w *walker) toggle(n *html.Node) Descriptor {
	d := w.base(n, KindCheckbox, ControlToggle)
	d.Prefilled = hasAttr(n, "checked") || strings.EqualFold(attr(n, "aria-checked"), "true")
	return d
}

func (w *walker) nativeSelect(n *html.Node) Descriptor {
	d := w.base(n, KindSelect, ControlSelect)
	for _, o := range findAll(n, func(m *html.Node) bool { return m.DataAtom == atom.Option }) {
		label := clean(rawText(o))
		value, hasValue := attrOK(o, "value")
		if !hasValue {
			value = label
		}
		if label == "" && value == "" {
			continue
		}
		d.Options = append(d.Options, Option{Label: label, Value: value})
		if hasAttr(o, "selected") && strings.TrimSpace(value) != "" {
			d.Prefilled = true
		}
	}
	return d
}

func (w *walker) listbox(n *html.Node) Descriptor {
	d := w.base(n, KindSelect, ControlListbox)
	for _, o := range findAll(n, func(m *html.Node) bool { return role(m) == "option" }) {
		value := attr(o, "data-value")
		label := firstNonEmpty(attr(o, "aria-label"), textOf(o), value)
		if value == "" && hasAttr(o, "data-value") {
			// placeholder entry such as "Choose"
			continue
		}
		d.Options = append(d.Options, Option{Label: label, Value: value, Locator: w.locator(o)})
		if strings.EqualFold(attr(o, "aria-selected"), "true") && value != "" {
			d.Prefilled = true
		}
	}
	return d
}

func (w *walker) inputGroup(typ, name string, members []*html.Node) Descriptor {
	container := commonAncestor(members)
	kind := KindRadio
	if typ == "checkbox" {
		kind = KindCheckbox
	}
	d := Descriptor{
		Locator: w.locator(container),
		Name:    name,
		Kind:    kind,
		Control: ControlChoices,
		Hidden:  w.hidden(container),
	}
	disabled := true
	for _, m := range members {
		label, _ := w.explicitLabel(m)
		if label == "" {
			label = firstNonEmpty(nextText(m), attr(m, "value"))
		}
		d.Options = append(d.Options, Option{Label: label, Value: attr(m, "value"), Locator: w.locator(m)})
		if hasAttr(m, "checked") {
			d.Prefilled = true
		}
		if hasAttr(m, "required") {
			d.Required = true
		}
		if !w.disabled(m) {
			disabled = false
		}
	}
	d.Disabled = disabled
	label, starred := w.groupLabel(container, name)
	d.Label = label
	d.Required = d.Required || starred
	return d
}

func (w *walker) ariaGroup(container *html.Node, kind InputKind, memberRole string) Descriptor {
	d := Descriptor{
		Locator:  w.locator(container),
		Kind:     kind,
		Control:  ControlChoices,
		Hidden:   w.hidden(container),
		Disabled: w.disabled(container),
		Required: strings.EqualFold(attr(container, "aria-required"), "true"),
	}
	for _, m := range findAll(container, func(x *html.Node) bool { return role(x) == memberRole }) {
		value := attr(m, "data-value")
		label := firstNonEmpty(attr(m, "aria-label"), value, textOf(m))
		d.Options = append(d.Options, Option{Label: label, Value: value, Locator: w.locator(m)})
		if strings.EqualFold(attr(m, "aria-checked"), "true") {
			d.Prefilled = true
		}
	}
	label, starred := w.groupLabel(container, "")
	d.Label = label
	d.Required = d.Required || starred
	return d
}

// checkboxContainer is the nearest list or group wrapping an ARIA checkbox.
func (w *walker) checkboxContainer(n *html.Node) *html.Node {
	for a := n.Parent; a != nil && a.Type == html.ElementNode; a = a.Parent {
		switch role(a) {
		case "list", "group":
			return a
		case "listitem":
			if findFirst(a, isHeading) != nil {
				return a
			}
		}
		if a.DataAtom == atom.Fieldset {
			return a
		}
	}
	return n.Parent
}

// label derives the human-readable label in priority order: explicit
// binding, placeholder, then adjacent text. The bool reports a trailing
// required marker.
func (w *walker) label(n *html.Node) (string, bool) {
	if l, starred := w.explicitLabel(n); l != "" {
		return l, starred
	}
	if p := clean(attr(n, "placeholder")); p != "" {
		return stripStar(p)
	}
	if h := w.questionHeading(n); h != "" {
		return stripStar(h)
	}
	if t := previousText(n); t != "" {
		return stripStar(t)
	}
	return humanize(firstNonEmpty(attr(n, "name"), attr(n, "id"))), false
}

func (w *walker) explicitLabel(n *html.Node) (string, bool) {
	if id := attr(n, "id"); id != "" {
		if l, ok := w.labelFor[id]; ok {
			if t := textOf(l); t != "" {
				return stripStar(t)
			}
		}
	}
	for a := n.Parent; a != nil; a = a.Parent {
		if a.DataAtom == atom.Label {
			if t := textOf(a); t != "" {
				return stripStar(t)
			}
			break
		}
	}
	if ids := strings.Fields(attr(n, "aria-labelledby")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if ref, ok := w.byID[id]; ok {
				if t := textOf(ref); t != "" {
					parts = append(parts, t)
				}
			}
		}
		if len(parts) > 0 {
			return stripStar(strings.Join(parts, " "))
		}
	}
	if l := clean(attr(n, "aria-label")); l != "" {
		return stripStar(l)
	}
	return "", false
}

func (w *walker) groupLabel(container *html.Node, name string) (string, bool) {
	for a := container; a != nil && a.Type == html.ElementNode; a = a.Parent {
		if a.DataAtom == atom.Fieldset {
			if legend := findFirst(a, func(m *html.Node) bool { return m.DataAtom == atom.Legend }); legend != nil {
				if t := textOf(legend); t != "" {
					return stripStar(t)
				}
			}
			break
		}
	}
	if l, starred := w.explicitLabel(container); l != "" {
		return l, starred
	}
	if h := w.questionHeading(container); h != "" {
		return stripStar(h)
	}
	if t := previousText(container); t != "" {
		return stripStar(t)
	}
	return humanize(name), false
}

// questionHeading returns the heading of the enclosing Google Forms style
// question block.
func (w *walker) questionHeading(n *html.Node) string {
	for a := n.Parent; a != nil; a = a.Parent {
		if role(a) != "listitem" {
			continue
		}
		if h := findFirst(a, isHeading); h != nil {
			return textOf(h)
		}
	}
	return ""
}

func (w *walker) hidden(n *html.Node) bool {
	for a := n; a != nil && a.Type == html.ElementNode; a = a.Parent {
		if hasAttr(a, "hidden") || strings.EqualFold(attr(a, "aria-hidden"), "true") {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(attr(a, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

func (w *walker) disabled(n *html.Node) bool {
	if hasAttr(n, "disabled") || hasAttr(n, "readonly") ||
		strings.EqualFold(attr(n, "aria-disabled"), "true") ||
		strings.EqualFold(attr(n, "aria-readonly"), "true") {
		return true
	}
	for a := n.Parent; a != nil; a = a.Parent {
		if a.DataAtom == atom.Fieldset && hasAttr(a, "disabled") {
			return true
		}
	}
	return false
}

func (w *walker) inputsNamed(typ, name string) []*html.Node {
	var out []*html.Node
	for _, n := range w.elements {
		if n.DataAtom == atom.Input && strings.EqualFold(attr(n, "type"), typ) && attr(n, "name") == name {
			out = append(out, n)
		}
	}
	return out
}

// locator prefers a unique id, then a unique name, then a structural path.
func (w *walker) locator(n *html.Node) string {
	if id := attr(n, "id"); id != "" && w.ids[id] == 1 {
		return idSelector(id)
	}
	if name := attr(n, "name"); name != "" && w.names[name] == 1 {
		return fmt.Sprintf(`%s[name="%s"]`, n.Data, cssEscape(name))
	}
	return w.structuralPath(n)
}

func (w *walker) structuralPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if cur != n {
			if id := attr(cur, "id"); id != "" && w.ids[id] == 1 {
				parts = append(parts, idSelector(id))
				break
			}
		}
		if cur.DataAtom == atom.Html {
			parts = append(parts, "html")
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", cur.Data, childIndex(cur)))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func idSelector(id string) string {
	if cssIdent.MatchString(id) {
		return "#" + id
	}
	return fmt.Sprintf(`[id="%s"]`, cssEscape(id))
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func childIndex(n *html.Node) int {
	i := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			i++
		}
	}
	return i
}

func commonAncestor(nodes []*html.Node) *html.Node {
	if len(nodes) == 1 {
		return nodes[0].Parent
	}
	chain := map[*html.Node]bool{}
	for a := nodes[0].Parent; a != nil; a = a.Parent {
		chain[a] = true
	}
	candidate := nodes[0].Parent
	for _, n := range nodes[1:] {
		for a := n.Parent; a != nil; a = a.Parent {
			if chain[a] {
				if depth(a) < depth(candidate) {
					candidate = a
				}
				break
			}
		}
	}
	return candidate
}

func depth(n *html.Node) int {
	d := 0
	for a := n; a != nil; a = a.Parent {
		d++
	}
	return d
}

// previousText scans preceding siblings, then the parent's preceding
// siblings, for the nearest text that is not part of another control.
func previousText(n *html.Node) string {
	cur := n
	for level := 0; level < 3 && cur != nil; level++ {
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			if containsControl(s) {
				return ""
			}
			if t := textOf(s); t != "" {
				return truncate(t)
			}
		}
		cur = cur.Parent
		if cur == nil || cur.DataAtom == atom.Form || cur.DataAtom == atom.Body {
			break
		}
	}
	return ""
}

// nextText returns trailing text directly after a choice input.
func nextText(n *html.Node) string {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if containsControl(s) || (s.Type == html.ElementNode && s.DataAtom == atom.Br) {
			return ""
		}
		if t := textOf(s); t != "" {
			return truncate(t)
		}
	}
	return ""
}

func containsControl(n *html.Node) bool {
	return findFirst(n, isNativeControl) != nil
}

func isNativeControl(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Input:
		return !strings.EqualFold(attr(n, "type"), "hidden")
	case atom.Select, atom.Textarea:
		return true
	}
	return false
}

func isHeading(n *html.Node) bool {
	return role(n) == "heading"
}

func isEditable(n *html.Node) bool {
	v, ok := attrOK(n, "contenteditable")
	return ok && (v == "" || strings.EqualFold(v, "true") || strings.EqualFold(v, "plaintext-only"))
}

func hasEditableAncestor(n *html.Node) bool {
	for a := n.Parent; a != nil; a = a.Parent {
		if isEditable(a) {
			return true
		}
	}
	return false
}

func role(n *html.Node) string {
	return strings.ToLower(strings.TrimSpace(attr(n, "role")))
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := findFirst(c, pred); m != nil {
			return m
		}
	}
	return nil
}

func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(x *html.Node) {
		if x.Type == html.ElementNode && pred(x) {
			out = append(out, x)
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return out
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attrOK(n, key)
	return ok
}

// textOf returns the collapsed visible text of n, skipping scripts and the
// contents of other controls.
func textOf(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(x *html.Node) {
		switch x.Type {
		case html.TextNode:
			b.WriteString(x.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch x.DataAtom {
			case atom.Script, atom.Style, atom.Select, atom.Option, atom.Textarea, atom.Noscript:
				return
			}
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return clean(b.String())
}

func rawText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func clean(s string) string {
	return truncate(strings.TrimSpace(spaceRuns.ReplaceAllString(s, " ")))
}

// truncate cuts s to at most maxLabelLength bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxLabelLength {
		return s
	}
	cut := maxLabelLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// stripStar removes required markers and reports whether one was present.
func stripStar(s string) (string, bool) {
	if !strings.Contains(s, "*") {
		return s, false
	}
	return clean(strings.ReplaceAll(s, "*", "")), true
}

func humanize(name string) string {
	if name == "" || opaqueName.MatchString(name) {
		return ""
	}
	s := camelBounds.ReplaceAllString(name, "$1 $2")
	s = nameSplit.ReplaceAllString(s, " ")
	return clean(strings.ToLower(s))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
