// Package format merges a drained batch of log entries into one e-mail
// subject and HTML body.
package format

import (
	"fmt"
	"html"
	"reflect"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/davecgh/go-spew/spew"

	"github.com/Chichichkin/LogMailer/internal/logging"
)

const (
	DefaultSubject = "({{ .Level }}) {{ .Message }} ({{ .Count }})"

	subjectSeparator = ", "
	entrySeparator   = "<hr/>\n"
	stackKey         = "stack"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	MaxDepth:                5,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// SubjectItem is the data the subject template sees for each distinct
// (level, message) pair.
type SubjectItem struct {
	Level   string
	Message string
	Count   int
}

type Formatter struct {
	label   string
	subject *template.Template
}

// New parses the subject template; an empty template selects DefaultSubject.
func New(label, subjectTemplate string) (*Formatter, error) {
	if subjectTemplate == "" {
		subjectTemplate = DefaultSubject
	}
	tmpl, err := template.New("subject").Funcs(sprig.TxtFuncMap()).Parse(subjectTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid subject template: %w", err)
	}
	return &Formatter{label: label, subject: tmpl}, nil
}

func (f *Formatter) Format(entries []logging.LogEntry) logging.CombinedMessage {
	return logging.CombinedMessage{
		Subject: f.Subject(entries),
		Body:    Body(entries),
	}
}

// Subject renders one item per distinct (level, message) pair in first-seen
// order, each with its occurrence count.
func (f *Formatter) Subject(entries []logging.LogEntry) string {
	items := Aggregate(entries)

	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, f.renderItem(item))
	}

	subject := strings.Join(parts, subjectSeparator)
	if f.label != "" {
		subject = "[" + f.label + "] " + subject
	}
	// header injection guard
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)
}

func (f *Formatter) renderItem(item SubjectItem) string {
	var b strings.Builder
	if err := f.subject.Execute(&b, item); err != nil {
		return fmt.Sprintf("(%s) %s (%d)", item.Level, item.Message, item.Count)
	}
	return b.String()
}

func Aggregate(entries []logging.LogEntry) []SubjectItem {
	type key struct{ level, message string }

	index := make(map[key]int)
	var items []SubjectItem
	for _, e := range entries {
		k := key{e.Level, e.Message}
		if i, ok := index[k]; ok {
			items[i].Count++
			continue
		}
		index[k] = len(items)
		items = append(items, SubjectItem{Level: e.Level, Message: e.Message, Count: 1})
	}
	return items
}

// Body concatenates every entry in order. Metadata is dumped after its
// message; a stack field gets its own block with line breaks kept.
func Body(entries []logging.LogEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(html.EscapeString(e.Message))
		b.WriteString("\n")

		meta, stack := splitStack(e.Metadata)
		if meta != nil {
			b.WriteString("<pre>")
			b.WriteString(html.EscapeString(strings.TrimRight(dumper.Sdump(meta), "\n")))
			b.WriteString("</pre>\n")
		}
		if stack != "" {
			b.WriteString("<div class=\"stack\">")
			b.WriteString(strings.ReplaceAll(html.EscapeString(stack), "\n", "<br/>"))
			b.WriteString("</div>\n")
		}

		b.WriteString(entrySeparator)
	}
	return b.String()
}

// splitStack pulls a stack field out of map metadata. The returned metadata
// is nil when nothing but the stack was present.
func splitStack(meta any) (any, string) {
	if absent(meta) {
		return nil, ""
	}

	var m map[string]any
	switch v := meta.(type) {
	case map[string]any:
		m = v
	case map[string]string:
		m = make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
	default:
		return meta, ""
	}

	raw, ok := m[stackKey]
	if !ok {
		if len(m) == 0 {
			return nil, ""
		}
		return m, ""
	}

	var stack string
	switch v := raw.(type) {
	case string:
		stack = v
	case []string:
		stack = strings.Join(v, "\n")
	default:
		return m, ""
	}

	rest := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k != stackKey {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		return nil, stack
	}
	return rest, stack
}

// absent reports metadata that carries nothing worth dumping.
func absent(meta any) bool {
	if meta == nil {
		return true
	}
	if s, ok := meta.(string); ok {
		return s == ""
	}
	v := reflect.ValueOf(meta)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
