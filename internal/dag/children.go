package dag

import (
	"fmt"

	"github.com/isabella232/stolos/internal/jobid"
	"github.com/isabella232/stolos/internal/stolerr"
	"github.com/isabella232/stolos/internal/taskconfig"
)

// GetChildren returns every child (app, job_id) that depends, directly, on
// (app, jobID), each labeled with the dependency group that produced it
// (spec.md §4.4).
//
// Unlike GetParents, a child's dependency group with subgroups is evaluated
// with OR semantics: each subgroup is checked independently and results are
// flattened, not required to all match (spec.md §9 open question — this
// asymmetry is intentional and preserves the original implementation's
// observed behavior).
func GetChildren(g *Graph, app, jobID string) ([]WithGroup, error) {
	var out []WithGroup
	for _, edge := range g.Successors(app) {
		childDesc, err := g.view.MustGet(edge.Child)
		if err != nil {
			return nil, err
		}
		group, ok := childDesc.DependsOn[edge.Group]
		if !ok {
			continue
		}
		rv, err := generateChildJobIDs(g, app, jobID, edge.Child, edge.Group, group)
		if err != nil {
			return nil, err
		}
		out = append(out, rv...)
	}
	return out, nil
}

func generateChildJobIDs(g *Graph, parentApp, parentJobID, childApp, groupName string, group *taskconfig.DepGroup) ([]WithGroup, error) {
	if group.SubGroups != nil {
		var out []WithGroup
		for _, sub := range group.SubGroups {
			rv, err := generateChildJobIDsForSpec(g, parentApp, parentJobID, childApp, groupName, sub)
			if err != nil {
				return nil, err
			}
			out = append(out, rv...)
		}
		return out, nil
	}
	return generateChildJobIDsForSpec(g, parentApp, parentJobID, childApp, groupName, group.Spec)
}

// generateChildJobIDsForSpec mirrors the original implementation's
// _generate_job_ids: skip specs that don't name parentApp, inherit the
// parent's job_id verbatim for an app_name-only spec, honor an explicit
// job_id list, or cross-product spec's restriction fields over the child's
// job_id template.
func generateChildJobIDsForSpec(g *Graph, parentApp, parentJobID, childApp, groupName string, spec *taskconfig.DepSpec) ([]WithGroup, error) {
	if !containsStr(spec.AppName, parentApp) {
		return nil, nil
	}

	if spec.OnlyAppName() {
		return []WithGroup{{AppJob: AppJob{App: childApp, JobID: parentJobID}, Group: groupName}}, nil
	}

	parentTmpl, ok := g.Template(parentApp)
	if !ok {
		return nil, stolerr.DAGMisconfigured(parentApp, parentJobID, "parent app has no job_id template to parse", nil)
	}
	pjobID, err := parentTmpl.Parse(parentApp, parentJobID)
	if err != nil {
		return nil, err
	}

	childTmpl, ok := g.Template(childApp)
	if !ok {
		return nil, stolerr.DAGMisconfigured(childApp, "", fmt.Sprintf("dependency group %q needs %q to have a job_id template", groupName, childApp), nil)
	}

	if len(spec.JobID) > 0 {
		if !containsStr(spec.JobID, parentJobID) {
			return nil, nil
		}
		values := make(map[string]string, len(pjobID)+len(spec.Fields))
		for k, v := range pjobID {
			values[k] = v
		}
		for k, vals := range spec.Fields {
			if len(vals) == 1 {
				values[k] = vals[0]
			}
		}
		jid, err := childTmpl.Format(childApp, values, groupName)
		if err != nil {
			return nil, err
		}
		return []WithGroup{{AppJob: AppJob{App: childApp, JobID: jid}, Group: groupName}}, nil
	}

	for k, v := range pjobID {
		if k == jobid.GroupField {
			continue
		}
		allowed, ok := spec.Fields[k]
		if !ok || !containsStr(allowed, v) {
			return nil, nil
		}
	}

	fields := childTmpl.Fields()
	var fieldsForProduct []string
	lists := make([][]string, 0, len(fields))
	for _, f := range fields {
		if f == jobid.GroupField {
			continue
		}
		vals, ok := spec.Fields[f]
		if !ok || len(vals) == 0 {
			return nil, stolerr.DAGMisconfigured(childApp, "", fmt.Sprintf("dependency group %q does not restrict field %q required by %q's job_id template", groupName, f, childApp), nil)
		}
		fieldsForProduct = append(fieldsForProduct, f)
		lists = append(lists, vals)
	}

	seen := map[string]bool{}
	var out []WithGroup
	for _, combo := range crossproduct(lists) {
		values := make(map[string]string, len(fieldsForProduct))
		for i, f := range fieldsForProduct {
			values[f] = combo[i]
		}
		jid, err := childTmpl.Format(childApp, values, groupName)
		if err != nil {
			return nil, err
		}
		if seen[jid] {
			continue
		}
		seen[jid] = true
		out = append(out, WithGroup{AppJob: AppJob{App: childApp, JobID: jid}, Group: groupName})
	}
	return out, nil
}
