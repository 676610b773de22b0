package deployment

// Style is how a group declares its deployment.
type Style int

const (
	// StyleProducer functions build and return the artifact themselves:
	//
	//	func() deployment.Deployable
	//	func(deployment.TestInfo) (*deployment.WebArchive, error)
	StyleProducer Style = iota

	// StyleGenerate functions receive an archive created by the harness and
	// fill it in:
	//
	//	func(a *deployment.WebArchive)
	//	func(a *deployment.Archive, info deployment.TestInfo) error
	StyleGenerate
)

// String makes Style satisfy the fmt.Stringer interface.
func (s Style) String() string {
	switch s {
	case StyleProducer:
		return "producer"
	case StyleGenerate:
		return "generate"
	default:
		return "unknown"
	}
}

// Method is a deployment declaration attached to a group.
type Method struct {
	// Name identifies the declaration in error messages.
	Name  string
	Style Style
	// Func is the declaring function. Its shape must match Style.
	Func any
	// Kind is the archive kind for StyleGenerate. KindInfer derives it from
	// the parameter type.
	Kind Kind
	// ServerGroups are the domain server groups to deploy to.
	ServerGroups []string
}

// Producer declares a StyleProducer deployment.
func Producer(name string, fn any, serverGroups ...string) Method {
	return Method{Name: name, Style: StyleProducer, Func: fn, ServerGroups: serverGroups}
}

// Generate declares a StyleGenerate deployment.
func Generate(name string, kind Kind, fn any, serverGroups ...string) Method {
	return Method{Name: name, Style: StyleGenerate, Func: fn, Kind: kind, ServerGroups: serverGroups}
}

// TestInfo describes the group a deployment is created for.
type TestInfo struct {
	DisplayName string
	Tags        []string
	Group       string
}
