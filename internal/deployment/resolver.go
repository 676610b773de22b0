package deployment

import (
	"fmt"
	"reflect"
	"strings"

	"harness/internal/api"
)

var (
	deployableType = reflect.TypeOf((*Deployable)(nil)).Elem()
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	testInfoType   = reflect.TypeOf(TestInfo{})

	// archiveParams maps the parameter types accepted by StyleGenerate
	// functions to the kind they imply.
	archiveParams = map[reflect.Type]Kind{
		reflect.TypeOf((*Archive)(nil)):           KindInfer,
		reflect.TypeOf((*WebArchive)(nil)):        KindWeb,
		reflect.TypeOf((*JavaArchive)(nil)):       KindJava,
		reflect.TypeOf((*EnterpriseArchive)(nil)): KindEnterprise,
		reflect.TypeOf((*AdapterArchive)(nil)):    KindAdapter,
	}
)

// Declarations is everything the resolver needs to know about a group.
type Declarations struct {
	// Group is the group name. Generated archives are named after it.
	Group string
	// Methods holds the declarations of the group and its parents.
	Methods []Method
	// InstanceType is the type of the group's per-case instance. A
	// declaring function whose first parameter has this type is bound to an
	// instance and therefore rejected.
	InstanceType reflect.Type
	Info         TestInfo
}

// Resolve finds the single deployment declaration, validates it, and invokes
// it. It returns (nil, nil, nil) when the group declares no deployment.
func Resolve(d Declarations) (Deployable, *Method, error) {
	m, err := Find(d)
	if err != nil || m == nil {
		return nil, nil, err
	}
	dep, err := invoke(d, m)
	if err != nil {
		return nil, nil, err
	}
	return dep, m, nil
}

// Find validates the declarations without invoking anything. It returns nil
// when there is nothing to deploy.
func Find(d Declarations) (*Method, error) {
	if len(d.Methods) == 0 {
		return nil, nil
	}
	subject := "group " + d.Group

	var producers, generators []string
	for _, m := range d.Methods {
		if m.Style == StyleGenerate {
			generators = append(generators, m.Name)
		} else {
			producers = append(producers, m.Name)
		}
	}
	if len(producers) > 0 && len(generators) > 0 {
		return nil, api.NewConfigurationError(subject,
			"both a deployment producer (%s) and a generated deployment (%s) are declared; only one is allowed",
			strings.Join(producers, ", "), strings.Join(generators, ", "))
	}
	if len(d.Methods) > 1 {
		names := append(producers, generators...)
		return nil, api.NewConfigurationError(subject,
			"found more than one deployment method: %s", strings.Join(names, ", "))
	}

	m := d.Methods[0]
	if m.Func == nil {
		return nil, api.NewConfigurationError(subject, "deployment method %s has no function", m.Name)
	}
	fn := reflect.TypeOf(m.Func)
	if fn.Kind() != reflect.Func {
		return nil, api.NewConfigurationError(subject, "deployment method %s is a %s, not a function", m.Name, fn)
	}
	if d.InstanceType != nil && fn.NumIn() > 0 && boundTo(fn.In(0), d.InstanceType) {
		return nil, api.NewConfigurationError(subject,
			"deployment method %s must be static; it takes the group instance %s as its first parameter", m.Name, fn.In(0))
	}

	var err error
	switch m.Style {
	case StyleProducer:
		err = checkProducer(fn, m.Name)
	case StyleGenerate:
		m.Kind, err = checkGenerate(fn, m.Name, m.Kind)
	default:
		err = fmt.Errorf("unknown declaration style %d", m.Style)
	}
	if err != nil {
		return nil, api.NewConfigurationError(subject, "%v", err)
	}
	return &m, nil
}

func boundTo(param, instance reflect.Type) bool {
	if param == instance {
		return true
	}
	if instance.Kind() == reflect.Pointer && param == instance.Elem() {
		return true
	}
	return param.Kind() == reflect.Pointer && param.Elem() == instance
}

func checkProducer(fn reflect.Type, name string) error {
	switch fn.NumIn() {
	case 0:
	case 1:
		if fn.In(0) != testInfoType {
			return fmt.Errorf("method %s parameter must be of type %s, but was %s", name, testInfoType, fn.In(0))
		}
	default:
		return fmt.Errorf("method %s has too many parameters; only one parameter of type %s is allowed", name, testInfoType)
	}

	switch fn.NumOut() {
	case 1:
	case 2:
		if fn.Out(1) != errorType {
			return fmt.Errorf("method %s second return value must be error, but was %s", name, fn.Out(1))
		}
	default:
		return fmt.Errorf("method %s must return a deployable archive", name)
	}
	if !fn.Out(0).Implements(deployableType) {
		return fmt.Errorf("method %s must return a value assignable to %s, but returns %s", name, deployableType, fn.Out(0))
	}
	return nil
}

func checkGenerate(fn reflect.Type, name string, kind Kind) (Kind, error) {
	switch {
	case fn.NumOut() > 1 || (fn.NumOut() == 1 && fn.Out(0) != errorType):
		return kind, fmt.Errorf("method %s must return nothing or an error", name)
	case fn.NumIn() == 0:
		return kind, fmt.Errorf("method %s must have at least one parameter", name)
	case fn.NumIn() > 2:
		return kind, fmt.Errorf("method %s has too many parameters; only two parameters are allowed", name)
	}

	implied, ok := archiveParams[fn.In(0)]
	if !ok {
		return kind, fmt.Errorf("method %s must have an archive type as the first parameter, but was %s", name, fn.In(0))
	}
	if fn.NumIn() == 2 && fn.In(1) != testInfoType {
		return kind, fmt.Errorf("parameter %s of method %s must be of type %s", fn.In(1), name, testInfoType)
	}

	switch {
	case kind == KindInfer && implied == KindInfer:
		return kind, fmt.Errorf("could not infer the archive type for parameter %s of method %s; declare the kind explicitly or use a typed archive", fn.In(0), name)
	case kind == KindInfer:
		return implied, nil
	case implied != KindInfer && implied != kind:
		return kind, fmt.Errorf("parameter %s of method %s is not assignable from a %s archive", fn.In(0), name, kind)
	}
	return kind, nil
}

func invoke(d Declarations, m *Method) (dep Deployable, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deployment method %s in group %s panicked: %v", m.Name, d.Group, r)
		}
	}()

	fn := reflect.ValueOf(m.Func)
	info := d.Info
	if info.Group == "" {
		info.Group = d.Group
	}

	switch m.Style {
	case StyleProducer:
		var args []reflect.Value
		if fn.Type().NumIn() == 1 {
			args = append(args, reflect.ValueOf(info))
		}
		out := fn.Call(args)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, fmt.Errorf("failed to execute deployment method %s in group %s: %w", m.Name, d.Group, out[1].Interface().(error))
		}
		if isNil(out[0]) {
			return nil, fmt.Errorf("deployment method %s in group %s returned no archive", m.Name, d.Group)
		}
		return out[0].Interface().(Deployable), nil

	default:
		archive := NewArchive(d.Group, m.Kind)
		args := []reflect.Value{archiveArg(fn.Type().In(0), archive)}
		if fn.Type().NumIn() == 2 {
			args = append(args, reflect.ValueOf(info))
		}
		out := fn.Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			return nil, fmt.Errorf("failed to execute deployment method %s in group %s: %w", m.Name, d.Group, out[0].Interface().(error))
		}
		return archive, nil
	}
}

func archiveArg(t reflect.Type, a *Archive) reflect.Value {
	switch t {
	case reflect.TypeOf((*WebArchive)(nil)):
		return reflect.ValueOf(&WebArchive{a})
	case reflect.TypeOf((*JavaArchive)(nil)):
		return reflect.ValueOf(&JavaArchive{a})
	case reflect.TypeOf((*EnterpriseArchive)(nil)):
		return reflect.ValueOf(&EnterpriseArchive{a})
	case reflect.TypeOf((*AdapterArchive)(nil)):
		return reflect.ValueOf(&AdapterArchive{a})
	default:
		return reflect.ValueOf(a)
	}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
