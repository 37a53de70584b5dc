package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	f := NewNodeFilter()

	tests := []struct {
		name     string
		expected NodeCategory
	}{
		{"(system)", CategoryRuntime},
		{"(compiled code)", CategoryRuntime},
		{"system / Context", CategoryRuntime},
		{"InternalNode", CategoryRuntime},
		{"FiberNode", CategoryFramework},
		{"VNode", CategoryFramework},
		{"UserSession", CategoryApplication},
		{"Array", CategoryApplication},
		{"", CategoryUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, f.Categorize(tt.name), "name %q", tt.name)
	}
}

func TestCategorizeCached(t *testing.T) {
	f := NewNodeFilter()
	assert.Equal(t, CategoryApplication, f.Categorize("OrderCache"))
	// Second lookup hits the cache and must agree.
	assert.Equal(t, CategoryApplication, f.Categorize("OrderCache"))
}

func TestShouldReport(t *testing.T) {
	f := NewNodeFilter()
	f.SetMinRetainedSize(1024)

	assert.False(t, f.ShouldReport("UserSession", 512))
	assert.True(t, f.ShouldReport("UserSession", 4096))
	assert.False(t, f.ShouldReport("(system)", 1<<20))
}

func TestAddRuntimePrefix(t *testing.T) {
	f := NewNodeFilter()
	assert.Equal(t, CategoryApplication, f.Categorize("MyRuntimeThing"))
	f.AddRuntimePrefix("MyRuntime")
	assert.Equal(t, CategoryRuntime, f.Categorize("MyRuntimeThing"))
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "runtime", CategoryRuntime.String())
	assert.Equal(t, "framework", CategoryFramework.String())
	assert.Equal(t, "application", CategoryApplication.String())
	assert.Equal(t, "unknown", CategoryUnknown.String())
}
