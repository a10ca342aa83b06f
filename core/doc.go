// Package core defines the domain contracts shared by every ScholarMesh
// component: the per-session state model and its invariants, the typed
// partial-update used to mutate it, the uniform tool result envelope and
// the agent response contract. Higher level packages (agents, session
// manager, orchestrator, stores) depend only on these types, never on each
// other's concrete implementations.
package core
