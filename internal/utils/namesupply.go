package utils

import "strconv"

// NameSupply hands out unique identifiers derived from a prefix hint.
//
// The first request for a hint returns the (normalized) hint itself, later requests
// append an increasing counter: "stack", "stack_1", "stack_2", ...
type NameSupply struct {
	used map[string]int
}

// NewNameSupply creates an empty NameSupply.
func NewNameSupply() *NameSupply {
	return &NameSupply{used: make(map[string]int)}
}

// Reserve marks name as used, so FreshName never returns it.
func (ns *NameSupply) Reserve(name string) {
	if _, found := ns.used[name]; !found {
		ns.used[name] = 0
	}
}

// ContainsName reports whether name was already handed out or reserved.
func (ns *NameSupply) ContainsName(name string) bool {
	_, found := ns.used[name]
	return found
}

// FreshName returns a unique valid C identifier based on hint.
func (ns *NameSupply) FreshName(hint string) string {
	base := NormalizeIdentifier(hint)
	if base == "" {
		base = "v"
	}
	if !ns.ContainsName(base) {
		ns.used[base] = 0
		return base
	}
	for {
		ns.used[base]++
		candidate := base + "_" + strconv.Itoa(ns.used[base])
		if !ns.ContainsName(candidate) {
			ns.used[candidate] = 0
			return candidate
		}
	}
}
