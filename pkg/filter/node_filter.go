// Package filter provides unified node name filtering logic for heap analysis.
// This package consolidates rules separating runtime internals from
// application objects.
package filter

import (
	"strings"
	"sync"
)

// NodeCategory represents the category of a heap node name.
type NodeCategory int

const (
	// CategoryUnknown indicates the node category is unknown.
	CategoryUnknown NodeCategory = iota
	// CategoryRuntime indicates engine and runtime internal objects.
	CategoryRuntime
	// CategoryFramework indicates framework internal objects.
	CategoryFramework
	// CategoryApplication indicates application-level objects.
	CategoryApplication
)

// String returns the string representation of the category.
func (c NodeCategory) String() string {
	switch c {
	case CategoryRuntime:
		return "runtime"
	case CategoryFramework:
		return "framework"
	case CategoryApplication:
		return "application"
	default:
		return "unknown"
	}
}

// NodeFilter classifies heap node names and decides which nodes the
// analyzers should surface. It is safe for concurrent use.
type NodeFilter struct {
	mu sync.RWMutex

	// Exact runtime-internal names
	runtimeNames map[string]bool

	// Runtime-internal prefixes
	runtimePrefixes []string

	// Framework internal prefixes
	frameworkPrefixes []string

	// Minimum retained size a node must reach to be reported
	minRetainedSize int64

	// Cache for frequently queried names
	categoryCache     map[string]NodeCategory
	categoryCacheSize int
}

// NewNodeFilter creates a new NodeFilter with default rules.
func NewNodeFilter() *NodeFilter {
	f := &NodeFilter{
		runtimeNames:      make(map[string]bool),
		categoryCache:     make(map[string]NodeCategory),
		categoryCacheSize: 10000,
	}
	f.initDefaults()
	return f
}

func (f *NodeFilter) initDefaults() {
	f.runtimeNames = map[string]bool{
		"(system)":            true,
		"(compiled code)":     true,
		"(sliced string)":     true,
		"(concatenated string)": true,
		"system / Context":    true,
		"system / Map":        true,
	}
	f.runtimePrefixes = []string{
		"(",
		"system /",
		"v8::",
		"InternalNode",
	}
	f.frameworkPrefixes = []string{
		"Fiber",
		"VNode",
		"ReactiveEffect",
		"Zone",
	}
}

// SetMinRetainedSize sets the minimum retained size threshold.
func (f *NodeFilter) SetMinRetainedSize(size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minRetainedSize = size
}

// MinRetainedSize returns the current minimum retained size threshold.
func (f *NodeFilter) MinRetainedSize() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.minRetainedSize
}

// AddRuntimePrefix registers an additional runtime-internal prefix.
func (f *NodeFilter) AddRuntimePrefix(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runtimePrefixes = append(f.runtimePrefixes, prefix)
	f.categoryCache = make(map[string]NodeCategory)
}

// Categorize returns the category of a node name.
func (f *NodeFilter) Categorize(name string) NodeCategory {
	f.mu.RLock()
	if cat, ok := f.categoryCache[name]; ok {
		f.mu.RUnlock()
		return cat
	}
	f.mu.RUnlock()

	cat := f.categorize(name)

	f.mu.Lock()
	if len(f.categoryCache) < f.categoryCacheSize {
		f.categoryCache[name] = cat
	}
	f.mu.Unlock()
	return cat
}

func (f *NodeFilter) categorize(name string) NodeCategory {
	if name == "" {
		return CategoryUnknown
	}
	if f.runtimeNames[name] {
		return CategoryRuntime
	}
	for _, p := range f.runtimePrefixes {
		if strings.HasPrefix(name, p) {
			return CategoryRuntime
		}
	}
	for _, p := range f.frameworkPrefixes {
		if strings.HasPrefix(name, p) {
			return CategoryFramework
		}
	}
	return CategoryApplication
}

// IsRuntimeInternal reports whether a node name belongs to the runtime.
func (f *NodeFilter) IsRuntimeInternal(name string) bool {
	return f.Categorize(name) == CategoryRuntime
}

// ShouldReport decides whether a node with the given name and retained
// size should appear in analyzer output.
func (f *NodeFilter) ShouldReport(name string, retainedSize int64) bool {
	f.mu.RLock()
	min := f.minRetainedSize
	f.mu.RUnlock()
	if retainedSize < min {
		return false
	}
	return !f.IsRuntimeInternal(name)
}

var (
	defaultFilter     *NodeFilter
	defaultFilterOnce sync.Once
)

// Default returns the shared NodeFilter instance.
func Default() *NodeFilter {
	defaultFilterOnce.Do(func() {
		defaultFilter = NewNodeFilter()
	})
	return defaultFilter
}
