package taskconfig

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/isabella232/stolos/internal/stolerr"
)

// DefaultGroupName is the dependency-group name used when an app's
// depends_on is a bare spec instead of a group_name -> spec mapping.
const DefaultGroupName = "default"

// DepSpec restricts a set of parent apps to a subset of their job ids.
// Fields holds every restriction key other than "app_name" and "job_id"
// (e.g. {"client_id": ["1111", "2222"]}).
type DepSpec struct {
	AppName []string `validate:"required,min=1"`
	JobID   []string // explicit parent job ids this spec inherits from, if any
	Fields  map[string][]string
}

// OnlyAppName reports whether this spec restricts nothing but app_name —
// meaning the child is declared to inherit the parent's job_id verbatim.
func (d *DepSpec) OnlyAppName() bool {
	return len(d.JobID) == 0 && len(d.Fields) == 0
}

// DepGroup is one dependency group. Exactly one of Spec or SubGroups is set:
// SubGroups models the "group_name -> [spec, spec, ...]" shape, which per
// §9's documented open question requires ALL subgroups to match a child's
// job_id (conservative, observed behavior of the original implementation).
type DepGroup struct {
	Spec      *DepSpec
	SubGroups []*DepSpec
}

// ValidIfOr is the valid_if_or predicate descriptor: either a set of
// accepted field values, or a reference to a named predicate (_func).
type ValidIfOr struct {
	Fields map[string][]string
	Func   string
}

// Descriptor is one app's task descriptor (spec.md §3).
type Descriptor struct {
	App           string
	JobType       string              `validate:"required"`
	JobIDTemplate string              // optional; empty means any job_id is accepted verbatim
	DependsOn     map[string]*DepGroup
	ValidIfOr     *ValidIfOr
	Autofill      map[string][]string
	MaxRetry      *int `validate:"omitempty,gte=0"` // nil = unbounded retries (§9 open question resolution)
}

// Validate checks the struct tags above (`[EXPANSION]` §3a), mirroring
// teacher signal_analysis_schema.go's validator.New().Struct(s) pattern.
func (d *Descriptor) Validate() error {
	return validator.New().Struct(d)
}

// buildDescriptor decodes one app's raw JSON Value into a Descriptor.
func buildDescriptor(app string, v Value) (*Descriptor, error) {
	d := &Descriptor{
		App:           app,
		JobType:       v.Get("job_type").AsString(),
		JobIDTemplate: v.Get("job_id").AsString(),
	}
	if err := d.Validate(); err != nil {
		return nil, stolerr.DAGMisconfigured(app, "", "job_type is required", err)
	}

	if dep := v.Get("depends_on"); !dep.IsZero() {
		groups, err := buildDependsOn(app, dep)
		if err != nil {
			return nil, err
		}
		d.DependsOn = groups
	}

	if vio := v.Get("valid_if_or"); !vio.IsZero() {
		d.ValidIfOr = buildValidIfOr(vio)
	}

	if af := v.Get("autofill"); af.IsObject() {
		d.Autofill = map[string][]string{}
		for _, k := range af.Keys() {
			d.Autofill[k] = af.Get(k).AsStringList()
		}
	}

	if mr := v.Get("max_retry"); !mr.IsZero() {
		n, err := mr.AsInt()
		if err != nil {
			return nil, stolerr.DAGMisconfigured(app, "", "max_retry must be an integer", err)
		}
		if n < 0 {
			return nil, stolerr.DAGMisconfigured(app, "", "max_retry must be nonnegative", nil)
		}
		d.MaxRetry = &n
	}

	return d, nil
}

func buildDependsOn(app string, dep Value) (map[string]*DepGroup, error) {
	if !dep.IsObject() {
		return nil, stolerr.DAGMisconfigured(app, "", "depends_on must be an object", nil)
	}

	// Bare spec: depends_on itself has an "app_name" key -> single default group.
	if dep.Has("app_name") {
		spec, err := buildDepSpec(app, DefaultGroupName, dep)
		if err != nil {
			return nil, err
		}
		return map[string]*DepGroup{DefaultGroupName: {Spec: spec}}, nil
	}

	groups := map[string]*DepGroup{}
	for _, name := range dep.Keys() {
		gv := dep.Get(name)
		if gv.IsList() {
			subs := gv.AsList()
			if len(subs) == 0 {
				return nil, stolerr.DAGMisconfigured(app, "", fmt.Sprintf("dependency group %q has no subgroups", name), nil)
			}
			specs := make([]*DepSpec, 0, len(subs))
			for _, sv := range subs {
				spec, err := buildDepSpec(app, name, sv)
				if err != nil {
					return nil, err
				}
				specs = append(specs, spec)
			}
			groups[name] = &DepGroup{SubGroups: specs}
			continue
		}
		if gv.IsObject() {
			spec, err := buildDepSpec(app, name, gv)
			if err != nil {
				return nil, err
			}
			groups[name] = &DepGroup{Spec: spec}
			continue
		}
		return nil, stolerr.DAGMisconfigured(app, "", fmt.Sprintf("dependency group %q has an unrecognized shape", name), nil)
	}
	return groups, nil
}

func buildDepSpec(app, groupName string, v Value) (*DepSpec, error) {
	appNames := v.Get("app_name").AsStringList()
	if len(appNames) == 0 {
		return nil, stolerr.DAGMisconfigured(app, "", fmt.Sprintf("dependency group %q has an empty app_name list", groupName), nil)
	}
	spec := &DepSpec{AppName: appNames, Fields: map[string][]string{}}
	if jid := v.Get("job_id"); !jid.IsZero() {
		spec.JobID = jid.AsStringList()
	}
	for _, k := range v.Keys() {
		if k == "app_name" || k == "job_id" {
			continue
		}
		spec.Fields[k] = v.Get(k).AsStringList()
	}
	if err := validator.New().Struct(spec); err != nil {
		return nil, stolerr.DAGMisconfigured(app, "", fmt.Sprintf("dependency group %q is invalid", groupName), err)
	}
	return spec, nil
}

func buildValidIfOr(v Value) *ValidIfOr {
	out := &ValidIfOr{Fields: map[string][]string{}}
	for _, k := range v.Keys() {
		if k == "_func" {
			out.Func = v.Get(k).AsString()
			continue
		}
		out.Fields[k] = v.Get(k).AsStringList()
	}
	return out
}
