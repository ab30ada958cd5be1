// Package jobid implements parsing and formatting of parametric job
// identifiers against a per-app template such as "{date}_{client_id}_{type}".
package jobid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/isabella232/stolos/internal/stolerr"
)

// GroupField is the reserved template field name that, when present,
// carries the dependency group a parent job id was synthesized for.
const GroupField = "dependency_group_name"

// fieldRe matches a single "{name}" placeholder in a template string.
var fieldRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Template is a compiled job-id template for one app.
//
// Parsing is complete (every field is bound) and exact (the whole input
// string must match, with nothing left over).
type Template struct {
	raw    string
	fields []string
	re     *regexp.Regexp
}

// Compile parses a template string like "{date}_{client_id}_{type}" into a
// Template that can parse and format job ids for one app.
func Compile(app, raw string) (*Template, error) {
	if raw == "" {
		return nil, stolerr.DAGMisconfigured(app, "", "app has no job_id template", nil)
	}

	var fields []string
	seen := map[string]bool{}
	pattern := &strings.Builder{}
	pattern.WriteString("^")

	last := 0
	for _, loc := range fieldRe.FindAllStringSubmatchIndex(raw, -1) {
		start, end := loc[0], loc[1]
		name := raw[loc[2]:loc[3]]
		pattern.WriteString(regexp.QuoteMeta(raw[last:start]))
		if seen[name] {
			// A repeated field must match the same value both times.
			pattern.WriteString(fmt.Sprintf("(?P<%s_dup>.+?)", name))
		} else {
			pattern.WriteString(fmt.Sprintf("(?P<%s>.+?)", name))
			fields = append(fields, name)
			seen[name] = true
		}
		last = end
	}
	pattern.WriteString(regexp.QuoteMeta(raw[last:]))
	pattern.WriteString("$")

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, stolerr.DAGMisconfigured(app, "", "invalid job_id template", err)
	}

	return &Template{raw: raw, fields: fields, re: re}, nil
}

// Raw returns the original template string.
func (t *Template) Raw() string { return t.raw }

// Fields returns the named fields this template binds, in template order.
// GroupField is included only if the template itself references it.
func (t *Template) Fields() []string {
	out := make([]string, len(t.fields))
	copy(out, t.fields)
	return out
}

// HasField reports whether the template declares the given named field.
func (t *Template) HasField(name string) bool {
	for _, f := range t.fields {
		if f == name {
			return true
		}
	}
	return false
}

// Parse parses jid against the template, returning every bound field.
// Parsing is complete and exact: every template field must be bound, and
// the entire string must be consumed.
func (t *Template) Parse(app, jid string) (map[string]string, error) {
	m := t.re.FindStringSubmatch(jid)
	if m == nil {
		return nil, stolerr.InvalidJobId(app, jid, fmt.Sprintf("job_id does not match template %q", t.raw), nil)
	}
	out := make(map[string]string, len(t.fields))
	for i, name := range t.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if strings.HasSuffix(name, "_dup") {
			base := strings.TrimSuffix(name, "_dup")
			if out[base] != m[i] {
				return nil, stolerr.InvalidJobId(app, jid, fmt.Sprintf("repeated field %q has inconsistent values", base), nil)
			}
			continue
		}
		out[name] = m[i]
	}
	return out, nil
}

// Format fills the template from fields. groupName, if non-empty, is bound
// to GroupField when the template references that reserved field; it is
// otherwise ignored, matching Python str.format's tolerance of unused
// keyword arguments.
func (t *Template) Format(app string, fields map[string]string, groupName string) (string, error) {
	values := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	if groupName != "" {
		values[GroupField] = groupName
	}

	for _, name := range t.fields {
		if _, ok := values[name]; !ok {
			return "", stolerr.DAGMisconfigured(app, "", fmt.Sprintf("missing field %q required by job_id template", name), nil)
		}
	}

	out := &strings.Builder{}
	last := 0
	for _, loc := range fieldRe.FindAllStringSubmatchIndex(t.raw, -1) {
		start, end := loc[0], loc[1]
		name := t.raw[loc[2]:loc[3]]
		out.WriteString(t.raw[last:start])
		out.WriteString(values[name])
		last = end
	}
	out.WriteString(t.raw[last:])
	return out.String(), nil
}
