// Package lsim is a discrete, four-valued digital logic simulator.
//
// A circuit is built in two stages. A CircuitDescription is the static
// form: typed components (gates, buffers, tri-state drivers, constants,
// pull resistors, I/O connectors and nested sub-circuits) plus wires
// tying their pins together. Descriptions live in a Library so that a
// circuit can embed another one by name.
//
// Instantiate turns a description into a CircuitInstance: pins are laid
// out in a dense arena, wires are collapsed into electrical nodes by a
// union-find netlist, and sub-circuit components recursively own their
// nested instances. A Simulator then drives the instance: it keeps a
// dirty set of components whose inputs changed, re-evaluates them in
// priority order, resolves multi-driver node conflicts, and repeats
// until the circuit is stable or a safety bound trips.
package lsim
