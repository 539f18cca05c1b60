// Package qemu builds hypervisor invocations from validated profiles and
// probed host capabilities. Build is a pure function: the same inputs
// always produce the same argument list, and the device/bus coupling
// rules are enforced by how the typed records are constructed rather
// than by string assembly order.
package qemu

import "strings"

// Property is one key=value element of a device specification. A
// property with an empty key serializes as a bare value.
type Property struct {
	Key   string
	Value string
}

// Spec is a single typed device or flag specification: a QEMU flag and
// its ordered property list.
type Spec struct {
	Flag  string
	Props []Property
}

// Args serializes the spec to its command-line form.
func (s Spec) Args() []string {
	if len(s.Props) == 0 {
		return []string{s.Flag}
	}
	parts := make([]string, 0, len(s.Props))
	for _, p := range s.Props {
		if p.Key == "" {
			parts = append(parts, p.Value)
			continue
		}
		parts = append(parts, p.Key+"="+p.Value)
	}
	return []string{s.Flag, strings.Join(parts, ",")}
}

// Invocation is a fully-specified hypervisor invocation: an ordered
// sequence of device/flag specifications plus anything the supervisor
// needs to know before launching it.
type Invocation struct {
	Binary string
	Specs  []Spec

	// NeedsDisplayServer is set when the built display device requires a
	// host display server (the supervisor starts the companion process
	// and points DISPLAY at its slot).
	NeedsDisplayServer bool

	// Warnings carries observable degrade reports, e.g. GPU requested
	// without 3D capability. Never silently dropped: the supervisor logs
	// each entry.
	Warnings []string
}

// Argv returns the flattened argument list, excluding the binary.
func (inv *Invocation) Argv() []string {
	args := make([]string, 0, len(inv.Specs)*2)
	for _, s := range inv.Specs {
		args = append(args, s.Args()...)
	}
	return args
}

// String renders the full command line for logging.
func (inv *Invocation) String() string {
	return inv.Binary + " " + strings.Join(inv.Argv(), " ")
}

func (inv *Invocation) add(flag string, props ...Property) {
	inv.Specs = append(inv.Specs, Spec{Flag: flag, Props: props})
}

func (inv *Invocation) addValue(flag, value string) {
	inv.add(flag, Property{Value: value})
}

func prop(key, value string) Property {
	return Property{Key: key, Value: value}
}
