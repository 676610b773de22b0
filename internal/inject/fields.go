package inject

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"harness/internal/api"
	"harness/internal/config"
)

// TagName is the struct tag read by InjectStatic and InjectInstance.
//
//	type OrdersIT struct {
//	    Server api.ServerHandle `harness:"server,static"`
//	    Orders api.Address      `harness:"address,path=orders"`
//	    Node   string           `harness:"address,node=server-one"`
//	}
const TagName = "harness"

const staticOption = "static"

// target is one validated injection point.
type target struct {
	name   string
	index  []int
	typ    reflect.Type
	req    Request
	static bool
}

// parseTag splits `type[,key=value...][,static]`.
func parseTag(owner string, field reflect.StructField, tag string) (target, error) {
	name := owner + "." + field.Name
	parts := strings.Split(tag, ",")
	kind := strings.TrimSpace(parts[0])
	if kind == "" {
		return target{}, api.NewConfigurationError(name, "%s tag %q has no resource type", TagName, tag)
	}

	t := target{
		name:  name,
		index: field.Index,
		typ:   field.Type,
		req:   Request{Type: TargetType(kind), Target: name},
	}
	static, err := parseOptions(name, parts[1:], &t.req, true)
	if err != nil {
		return target{}, err
	}
	t.static = static
	return t, nil
}

// parseOptions adds the key=value options to req's qualifiers and reports
// whether the static option was present.
func parseOptions(name string, opts []string, req *Request, allowStatic bool) (bool, error) {
	static := false
	for _, opt := range opts {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "":
		case opt == staticOption && allowStatic:
			static = true
		case strings.Contains(opt, "="):
			k, v, _ := strings.Cut(opt, "=")
			if strings.TrimSpace(k) == "" {
				return false, api.NewConfigurationError(name, "qualifier %q has no key", opt)
			}
			if req.Qualifiers == nil {
				req.Qualifiers = map[string]string{}
			}
			req.Qualifiers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		default:
			return false, api.NewConfigurationError(name, "unknown %s tag option %q", TagName, opt)
		}
	}
	return static, nil
}

// collectTargets validates every tagged field of the struct behind v.
func collectTargets(v any) (reflect.Value, []target, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, api.NewConfigurationError(fmt.Sprintf("%T", v),
			"injection target must be a non-nil pointer to a struct")
	}
	elem := rv.Elem()
	owner := elem.Type().Name()

	var targets []target
	for _, field := range reflect.VisibleFields(elem.Type()) {
		tag, ok := field.Tag.Lookup(TagName)
		if !ok || tag == "-" {
			continue
		}
		if !field.IsExported() {
			return reflect.Value{}, nil, api.NewConfigurationError(owner+"."+field.Name,
				"field is not exported and cannot be injected")
		}
		if fv, err := elem.FieldByIndexErr(field.Index); err != nil || !fv.CanSet() {
			return reflect.Value{}, nil, api.NewConfigurationError(owner+"."+field.Name,
				"field cannot be set through an unexported or nil embedded struct")
		}
		t, err := parseTag(owner, field, tag)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		targets = append(targets, t)
	}
	return elem, targets, nil
}

// InjectStatic fills the static tagged fields of target, a pointer to the
// struct holding group-wide values.
func (r *Registry) InjectStatic(ctx context.Context, gc GroupResources, target any) error {
	return r.inject(ctx, gc, target, true)
}

// InjectInstance fills the non-static tagged fields of instance.
func (r *Registry) InjectInstance(ctx context.Context, gc GroupResources, instance any) error {
	return r.inject(ctx, gc, instance, false)
}

func (r *Registry) inject(ctx context.Context, gc GroupResources, v any, static bool) error {
	elem, targets, err := collectTargets(v)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if t.static != static {
			continue
		}
		produced, err := r.Produce(ctx, gc, t.req)
		if err != nil {
			return err
		}
		value, err := convert(produced, t.typ)
		if err != nil {
			return &api.InjectionError{Target: t.name, Type: string(t.req.Type), Cause: err}
		}
		elem.FieldByIndex(t.index).Set(value)
	}
	return nil
}

var (
	contextType       = reflect.TypeOf((*context.Context)(nil)).Elem()
	serverHandleType  = reflect.TypeOf((*api.ServerHandle)(nil)).Elem()
	domainHandleType  = reflect.TypeOf((*api.DomainHandle)(nil)).Elem()
	clientType        = reflect.TypeOf((*api.ManagementClient)(nil)).Elem()
	deploymentMgrType = reflect.TypeOf((*api.DeploymentManager)(nil)).Elem()
	addressType       = reflect.TypeOf(api.Address{})
	urlType           = reflect.TypeOf(&url.URL{})
	settingsType      = reflect.TypeOf(&config.Settings{})
)

// paramTargets maps function parameter types to the resource they receive.
var paramTargets = map[reflect.Type]TargetType{
	serverHandleType:  TargetServer,
	domainHandleType:  TargetServer,
	clientType:        TargetManagementClient,
	deploymentMgrType: TargetDeploymentManager,
	addressType:       TargetAddress,
	urlType:           TargetAddress,
	settingsType:      TargetSettings,
}

// ParamQualifier qualifies one parameter of a function passed to
// ResolveParams, the way key=value options qualify a tagged field.
type ParamQualifier struct {
	// Index is the zero-based parameter position.
	Index int
	// Options uses the tag option syntax, e.g. "path=orders,node=server-one".
	Options string
}

// Qualify attaches options to parameter index.
//
//	r.ResolveParams(ctx, gc, func(orders api.Address) {...}, inject.Qualify(0, "path=orders"))
func Qualify(index int, options string) ParamQualifier {
	return ParamQualifier{Index: index, Options: options}
}

// ResolveParams produces the arguments for fn. A context.Context parameter
// receives ctx; every other parameter type must map to one resource type.
// All parameters and qualifiers are checked before anything is produced.
func (r *Registry) ResolveParams(ctx context.Context, gc GroupResources, fn any, qualifiers ...ParamQualifier) ([]reflect.Value, error) {
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func {
		return nil, api.NewConfigurationError(fmt.Sprintf("%T", fn), "not a function")
	}

	reqs := make([]Request, ft.NumIn())
	for i := range reqs {
		pt := ft.In(i)
		if pt == contextType {
			continue
		}
		kind, ok := paramTargets[pt]
		if !ok {
			return nil, api.NewConfigurationError(fmt.Sprintf("parameter %d of %s", i, ft),
				"no resource type can be injected into %s", pt)
		}
		reqs[i] = Request{Type: kind, Target: fmt.Sprintf("parameter %d (%s)", i, pt)}
	}
	for _, q := range qualifiers {
		name := fmt.Sprintf("parameter %d of %s", q.Index, ft)
		if q.Index < 0 || q.Index >= len(reqs) {
			return nil, api.NewConfigurationError(name, "%s has %d parameters", ft, len(reqs))
		}
		if reqs[q.Index].Type == "" {
			return nil, api.NewConfigurationError(name, "a context parameter cannot be qualified")
		}
		if _, err := parseOptions(name, strings.Split(q.Options, ","), &reqs[q.Index], false); err != nil {
			return nil, err
		}
	}

	args := make([]reflect.Value, ft.NumIn())
	for i, req := range reqs {
		if req.Type == "" {
			args[i] = reflect.ValueOf(ctx)
			continue
		}
		produced, err := r.Produce(ctx, gc, req)
		if err != nil {
			return nil, err
		}
		v, err := convert(produced, ft.In(i))
		if err != nil {
			return nil, &api.InjectionError{Target: req.Target, Type: string(req.Type), Cause: err}
		}
		args[i] = v
	}
	return args, nil
}

// convert assigns produced to t. Addresses can also land in string and
// *url.URL targets.
func convert(produced any, t reflect.Type) (reflect.Value, error) {
	if produced == nil {
		return reflect.Value{}, fmt.Errorf("producer returned nil for %s", t)
	}
	v := reflect.ValueOf(produced)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if addr, ok := produced.(api.Address); ok {
		switch t {
		case reflect.TypeOf(""):
			return reflect.ValueOf(addr.String()), nil
		case urlType:
			u, err := url.Parse(addr.String())
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(u), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("produced %T, which is not assignable to %s", produced, t)
}
