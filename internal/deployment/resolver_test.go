package deployment

import (
	"errors"
	"reflect"
	"testing"

	"harness/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ordersIT struct{}

func (o *ordersIT) Deployment() *WebArchive { return NewWebArchive("bound") }

func declarations(methods ...Method) Declarations {
	return Declarations{
		Group:        "OrdersIT",
		Methods:      methods,
		InstanceType: reflect.TypeOf(&ordersIT{}),
		Info:         TestInfo{DisplayName: "Orders", Tags: []string{"smoke"}},
	}
}

func TestResolve_NoDeclaration(t *testing.T) {
	dep, m, err := Resolve(declarations())
	require.NoError(t, err)
	assert.Nil(t, dep)
	assert.Nil(t, m)
}

func TestResolve_ProducerShapes(t *testing.T) {
	tests := []struct {
		name string
		fn   any
	}{
		{"no args", func() *WebArchive { return NewWebArchive("orders") }},
		{"interface result", func() Deployable { return NewJavaArchive("orders") }},
		{"with error", func() (*EnterpriseArchive, error) { return NewEnterpriseArchive("orders"), nil }},
		{"with test info", func(info TestInfo) *WebArchive {
			return NewWebArchive(info.Group)
		}},
		{"with test info and error", func(info TestInfo) (Deployable, error) {
			return NewAdapterArchive("orders"), nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep, m, err := Resolve(declarations(Producer("deployment", tt.fn)))
			require.NoError(t, err)
			require.NotNil(t, dep)
			assert.Equal(t, StyleProducer, m.Style)
		})
	}
}

func TestResolve_ProducerReceivesTestInfo(t *testing.T) {
	var got TestInfo
	fn := func(info TestInfo) *WebArchive {
		got = info
		return NewWebArchive("orders")
	}
	_, _, err := Resolve(declarations(Producer("deployment", fn)))
	require.NoError(t, err)
	assert.Equal(t, "Orders", got.DisplayName)
	assert.Equal(t, "OrdersIT", got.Group)
	assert.Equal(t, []string{"smoke"}, got.Tags)
}

func TestResolve_GenerateInfersKind(t *testing.T) {
	tests := []struct {
		name     string
		fn       any
		kind     Kind
		expected string
	}{
		{"war", func(a *WebArchive) { a.AddWebInf("web.xml", []byte("<web-app/>")) }, KindInfer, "OrdersIT.war"},
		{"jar", func(a *JavaArchive) {}, KindInfer, "OrdersIT.jar"},
		{"ear", func(a *EnterpriseArchive, info TestInfo) error { return nil }, KindInfer, "OrdersIT.ear"},
		{"rar", func(a *AdapterArchive) error { return nil }, KindInfer, "OrdersIT.rar"},
		{"explicit on untyped", func(a *Archive) {}, KindEnterprise, "OrdersIT.ear"},
		{"explicit matching typed", func(a *WebArchive) {}, KindWeb, "OrdersIT.war"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep, m, err := Resolve(declarations(Generate("deployment", tt.kind, tt.fn)))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dep.Name())
			assert.Equal(t, KindOf(tt.expected), m.Kind)
		})
	}
}

func TestResolve_GenerateFillsArchive(t *testing.T) {
	fn := func(a *WebArchive, info TestInfo) {
		a.AddString("index.html", "hello "+info.DisplayName)
	}
	dep, _, err := Resolve(declarations(Generate("deployment", KindInfer, fn)))
	require.NoError(t, err)

	archive, ok := dep.(*Archive)
	require.True(t, ok)
	require.True(t, archive.Contains("index.html"))
	assert.Equal(t, "hello Orders", string(archive.Entries()[0].Data))
}

func TestResolve_BothStylesIsConfigurationError(t *testing.T) {
	invoked := false
	producer := Producer("produce", func() *WebArchive {
		invoked = true
		return NewWebArchive("x")
	})
	generate := Generate("generate", KindInfer, func(a *WebArchive) { invoked = true })

	_, _, err := Resolve(declarations(producer, generate))
	require.Error(t, err)
	assert.True(t, api.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "only one is allowed")
	assert.False(t, invoked, "no declaring function may run when the declaration is invalid")
}

func TestResolve_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		methods []Method
		message string
	}{
		{
			name: "two producers",
			methods: []Method{
				Producer("a", func() *WebArchive { return nil }),
				Producer("b", func() *WebArchive { return nil }),
			},
			message: "more than one deployment method: a, b",
		},
		{"nil func", []Method{Producer("a", nil)}, "has no function"},
		{"not a func", []Method{Producer("a", "nope")}, "not a function"},
		{"bound to instance", []Method{Producer("a", (*ordersIT).Deployment)}, "must be static"},
		{"producer bad param", []Method{Producer("a", func(s string) *WebArchive { return nil })}, "must be of type"},
		{"producer too many params", []Method{Producer("a", func(TestInfo, TestInfo) *WebArchive { return nil })}, "too many parameters"},
		{"producer no result", []Method{Producer("a", func() {})}, "must return a deployable"},
		{"producer wrong result", []Method{Producer("a", func() string { return "" })}, "assignable to"},
		{"producer second result not error", []Method{Producer("a", func() (*WebArchive, string) { return nil, "" })}, "must be error"},
		{"generate returns value", []Method{Generate("a", KindInfer, func(a *WebArchive) string { return "" })}, "nothing or an error"},
		{"generate no params", []Method{Generate("a", KindInfer, func() {})}, "at least one parameter"},
		{"generate too many params", []Method{Generate("a", KindInfer, func(*WebArchive, TestInfo, int) {})}, "too many parameters"},
		{"generate not archive", []Method{Generate("a", KindInfer, func(s string) {})}, "archive type as the first parameter"},
		{"generate bad second param", []Method{Generate("a", KindInfer, func(*WebArchive, string) {})}, "must be of type"},
		{"generate cannot infer", []Method{Generate("a", KindInfer, func(*Archive) {})}, "could not infer"},
		{"generate kind mismatch", []Method{Generate("a", KindEnterprise, func(*WebArchive) {})}, "not assignable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Resolve(declarations(tt.methods...))
			require.Error(t, err)
			assert.True(t, api.IsConfigurationError(err), "expected ConfigurationError, got %T", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestResolve_InvocationFailures(t *testing.T) {
	boom := errors.New("boom")

	_, _, err := Resolve(declarations(Producer("a", func() (*WebArchive, error) { return nil, boom })))
	assert.ErrorIs(t, err, boom)
	assert.False(t, api.IsConfigurationError(err))

	_, _, err = Resolve(declarations(Producer("a", func() *WebArchive { return nil })))
	assert.ErrorContains(t, err, "returned no archive")

	_, _, err = Resolve(declarations(Generate("a", KindInfer, func(*WebArchive) error { return boom })))
	assert.ErrorIs(t, err, boom)

	_, _, err = Resolve(declarations(Generate("a", KindInfer, func(*WebArchive) { panic("bad") })))
	assert.ErrorContains(t, err, "panicked: bad")
}

func TestFind_DoesNotInvoke(t *testing.T) {
	m, err := Find(declarations(Producer("a", func() *WebArchive {
		t.Fatal("Find must not invoke the declaring function")
		return nil
	}, "main-server-group")))
	require.NoError(t, err)
	assert.Equal(t, []string{"main-server-group"}, m.ServerGroups)
}
