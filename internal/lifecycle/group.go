package lifecycle

import (
	"reflect"

	"harness/internal/api"
	"harness/internal/deployment"
)

// ManualMode marks a group that controls the server lifecycle itself.
type ManualMode struct {
	// AutoStart starts the server before the group like automatic mode,
	// but the group still gets an unrestricted handle.
	AutoStart bool
}

// Group describes a test group: its topology, its deployment declarations
// and how the server lifecycle is driven.
type Group struct {
	Name        string
	DisplayName string
	Tags        []string
	Topology    api.Topology

	// DomainServerGroups is the group-wide list of domain server groups.
	//
	// Deprecated: declare server groups on the deployment method instead.
	DomainServerGroups []string

	// Manual is nil for automatic lifecycle management.
	Manual *ManualMode

	Methods []deployment.Method
	Parent  *Group

	// InstanceType is the group's per-case instance type, if any.
	InstanceType reflect.Type
}

// IsManual reports whether the group drives the server itself.
func (g *Group) IsManual() bool { return g.Manual != nil }

// startsServer reports whether the harness starts the server before the
// group runs.
func (g *Group) startsServer() bool { return g.Manual == nil || g.Manual.AutoStart }

// Declarations collects the deployment methods of g and its parents, own
// declarations first.
func (g *Group) Declarations() deployment.Declarations {
	d := deployment.Declarations{
		Group:        g.Name,
		InstanceType: g.InstanceType,
		Info: deployment.TestInfo{
			DisplayName: g.DisplayName,
			Tags:        g.Tags,
			Group:       g.Name,
		},
	}
	for cur := g; cur != nil; cur = cur.Parent {
		d.Methods = append(d.Methods, cur.Methods...)
	}
	if d.Info.DisplayName == "" {
		d.Info.DisplayName = g.Name
	}
	return d
}
