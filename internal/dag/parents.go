package dag

import (
	"fmt"
	"sort"

	"github.com/isabella232/stolos/internal/jobid"
	"github.com/isabella232/stolos/internal/stolerr"
	"github.com/isabella232/stolos/internal/taskconfig"
)

// GetParents returns every parent (app, job_id) of (app, jobID), each
// labeled with the dependency group that produced it (spec.md §4.3).
//
// filterDeps, if non-empty, restricts the search to the named dependency
// groups (every name must exist, or this returns a DAGMisconfigured error).
// filterParents, if non-empty, restricts the search to the named parent
// apps, and every name must actually be reachable as a parent through the
// selected groups.
func GetParents(g *Graph, app, jobID string, filterDeps, filterParents []string) ([]WithGroup, error) {
	desc, err := g.view.MustGet(app)
	if err != nil {
		return nil, err
	}

	deps := toSet(filterDeps)
	var parsed map[string]string
	if jobID != "" {
		if tmpl, ok := g.Template(app); ok {
			parsed, err = tmpl.Parse(app, jobID)
			if err != nil {
				return nil, err
			}
			if groupName, ok := parsed[jobid.GroupField]; ok {
				deps[groupName] = true
			}
		}
	}

	groupNames, err := selectGroups(app, desc, deps)
	if err != nil {
		return nil, err
	}

	var out []WithGroup
	for _, groupName := range groupNames {
		group := desc.DependsOn[groupName]

		if !matchGroupToJobID(group, parsed) {
			continue
		}

		if group.SubGroups != nil {
			rv, err := getParentsSubgroups(g, groupName, group.SubGroups, app, jobID, filterParents)
			if err != nil {
				return nil, err
			}
			out = append(out, rv...)
			continue
		}

		if err := validateKnownParents(group.Spec.AppName, filterParents, app, jobID); err != nil {
			return nil, err
		}
		rv, err := getParentJobIDs(g, groupName, group.Spec, app, jobID, filterParents)
		if err != nil {
			return nil, err
		}
		out = append(out, rv...)
	}
	return out, nil
}

// selectGroups returns desc's dependency group names, in sorted order,
// restricted to filterDeps when non-empty.
func selectGroups(app string, desc *taskconfig.Descriptor, filterDeps map[string]bool) ([]string, error) {
	all := make([]string, 0, len(desc.DependsOn))
	for name := range desc.DependsOn {
		all = append(all, name)
	}
	sort.Strings(all)

	if len(filterDeps) == 0 {
		return all, nil
	}

	known := toSet(all)
	for name := range filterDeps {
		if !known[name] {
			return nil, stolerr.DAGMisconfigured(app, "", fmt.Sprintf("requested dependency group %q does not exist on %q", name, app), nil)
		}
	}

	out := make([]string, 0, len(filterDeps))
	for _, name := range all {
		if filterDeps[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

// matchGroupToJobID reports whether group applies to the child's own parsed
// job_id fields. A group of subgroups requires every subgroup to match
// (spec.md §9 open question: conservative ALL-match, as observed in the
// original implementation) — this is intentionally asymmetric with
// generateChildJobIDs's independent, per-subgroup OR semantics.
func matchGroupToJobID(group *taskconfig.DepGroup, parsed map[string]string) bool {
	if group.SubGroups != nil {
		for _, sub := range group.SubGroups {
			if !matchDepSpec(sub, parsed) {
				return false
			}
		}
		return true
	}
	return matchDepSpec(group.Spec, parsed)
}

// matchDepSpec reports whether spec's own restriction fields are all
// satisfied by parsed, the child's own parsed job_id fields. A spec that
// restricts nothing but app_name, or that lists explicit parent job ids,
// always matches — there is nothing in the child's job_id to check it
// against.
func matchDepSpec(spec *taskconfig.DepSpec, parsed map[string]string) bool {
	if len(spec.JobID) > 0 || spec.OnlyAppName() {
		return true
	}
	for key, allowed := range spec.Fields {
		if key == jobid.GroupField {
			continue
		}
		v, ok := parsed[key]
		if !ok || !containsStr(allowed, v) {
			return false
		}
	}
	return true
}

func getParentsSubgroups(g *Graph, groupName string, subgroups []*taskconfig.DepSpec, app, jobID string, filterParents []string) ([]WithGroup, error) {
	if len(filterParents) > 0 {
		all := map[string]bool{}
		for _, sub := range subgroups {
			for _, a := range sub.AppName {
				all[a] = true
			}
		}
		for _, p := range filterParents {
			if !all[p] {
				return nil, stolerr.DAGMisconfigured(app, jobID, fmt.Sprintf("%q is not a parent of this child via dependency group %q", p, groupName), nil)
			}
		}
	}

	var out []WithGroup
	for _, sub := range subgroups {
		effective := sub.AppName
		if len(filterParents) > 0 {
			effective = intersect(filterParents, sub.AppName)
			if len(effective) == 0 {
				continue
			}
		}
		rv, err := getParentJobIDs(g, groupName, sub, app, jobID, effective)
		if err != nil {
			return nil, err
		}
		out = append(out, rv...)
	}
	return out, nil
}

func validateKnownParents(known, filterParents []string, app, jobID string) error {
	if len(filterParents) == 0 {
		return nil
	}
	knownSet := toSet(known)
	for _, p := range filterParents {
		if !knownSet[p] {
			return stolerr.DAGMisconfigured(app, jobID, fmt.Sprintf("%q is not a parent of this child", p), nil)
		}
	}
	return nil
}

// getParentJobIDs yields one (parent_app, job_id) pair per parent named in
// parentNames (or, if empty, spec.AppName) — either an explicit job_id
// listed by spec, one injected from the child's own job_id (spec.md §4.3
// step 4), or every job_id produced by cross-producting spec's restriction
// fields over the parent's template.
func getParentJobIDs(g *Graph, groupName string, spec *taskconfig.DepSpec, childApp, childJobID string, parentNames []string) ([]WithGroup, error) {
	if len(parentNames) == 0 {
		parentNames = spec.AppName
	}

	var out []WithGroup
	for _, parentApp := range parentNames {
		jobIDs := spec.JobID

		if spec.OnlyAppName() {
			injected, err := injectJobID(g, childApp, childJobID, parentApp)
			if err != nil {
				return nil, err
			}
			jobIDs = []string{injected}
		}

		if len(jobIDs) > 0 {
			for _, jid := range jobIDs {
				if tmpl, ok := g.Template(parentApp); ok {
					if _, err := tmpl.Parse(parentApp, jid); err != nil {
						return nil, stolerr.InvalidJobId(parentApp, jid, fmt.Sprintf("parent job_id declared by dependency group %q of %q does not belong to %q", groupName, childApp, parentApp), err)
					}
				}
				out = append(out, WithGroup{AppJob: AppJob{App: parentApp, JobID: jid}, Group: groupName})
			}
			continue
		}

		tmpl, ok := g.Template(parentApp)
		if !ok {
			return nil, stolerr.DAGMisconfigured(childApp, childJobID, fmt.Sprintf("dependency group %q needs parent %q to have a job_id template", groupName, parentApp), nil)
		}

		fields := tmpl.Fields()
		var fieldsForProduct []string
		lists := make([][]string, 0, len(fields))
		for _, f := range fields {
			if f == jobid.GroupField {
				continue
			}
			vals, ok := spec.Fields[f]
			if !ok || len(vals) == 0 {
				return nil, stolerr.DAGMisconfigured(childApp, childJobID, fmt.Sprintf("dependency group %q does not restrict field %q required by %q's job_id template", groupName, f, parentApp), nil)
			}
			fieldsForProduct = append(fieldsForProduct, f)
			lists = append(lists, vals)
		}

		seen := map[string]bool{}
		for _, combo := range crossproduct(lists) {
			values := make(map[string]string, len(fieldsForProduct))
			for i, f := range fieldsForProduct {
				values[f] = combo[i]
			}
			jid, err := tmpl.Format(parentApp, values, groupName)
			if err != nil {
				return nil, err
			}
			if seen[jid] {
				continue
			}
			seen[jid] = true
			out = append(out, WithGroup{AppJob: AppJob{App: parentApp, JobID: jid}, Group: groupName})
		}
	}
	return out, nil
}

// injectJobID derives a parent's job_id from the child's own job_id, for a
// dependency group that restricts nothing but app_name — meaning the child
// is declared to simply inherit the parent's job_id verbatim (spec.md §4.3
// step 4).
func injectJobID(g *Graph, childApp, childJobID, parentApp string) (string, error) {
	if childJobID == "" {
		return "", stolerr.DAGMisconfigured(parentApp, "", fmt.Sprintf("cannot derive %q's job_id: the child's job_id is unknown but the dependency group only restricts app_name, meaning the child inherits the parent's job_id verbatim", parentApp), nil)
	}
	parentTmpl, ok := g.Template(parentApp)
	if !ok {
		return "", stolerr.DAGMisconfigured(parentApp, "", "parent app has no job_id template to inject into", nil)
	}
	childTmpl, ok := g.Template(childApp)
	if !ok {
		return "", stolerr.DAGMisconfigured(childApp, childJobID, "child app has no job_id template to parse", nil)
	}
	meta, err := childTmpl.Parse(childApp, childJobID)
	if err != nil {
		return "", err
	}
	jid, err := parentTmpl.Format(parentApp, meta, "")
	if err != nil {
		return "", stolerr.DAGMisconfigured(parentApp, "", fmt.Sprintf("the child job_id doesn't contain enough metadata to create %q's job_id: %v", parentApp, err), err)
	}
	return jid, nil
}

func intersect(a, b []string) []string {
	bs := toSet(b)
	var out []string
	for _, x := range a {
		if bs[x] {
			out = append(out, x)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}
