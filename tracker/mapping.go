package tracker

// MappingKind discriminates the two binding forms a called agent's local
// arg can have against an ensemble's arg, per spec §3 (__mapping__).
type MappingKind string

const (
	// MappingValue copies the ensemble's value once, at call time.
	MappingValue MappingKind = "value"
	// MappingRef makes reads/writes on the called agent's arg reflect
	// through to the ensemble's arg in both directions.
	MappingRef MappingKind = "ref"
)

// Binding is one entry of a called agent's __mapping__: localArg is bound
// either to a one-shot copy of ensembleAgent.ensembleArg, or a live
// reference to it.
type Binding struct {
	Kind          MappingKind
	EnsembleAgent string
	EnsembleArg   string
}

// refPrefix is the authoring syntax that marks a mapping entry as a Ref
// rather than a Value binding: "ref date_from_main" in bot-package YAML.
const refPrefix = "ref "
