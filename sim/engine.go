package sim

import "fmt"

// Engine runs one simulation to its horizon.
type Engine interface {
	Run() (*SimulationResults, error)
}

// validEngines maps accepted engine names.
var validEngines = map[string]bool{
	EngineABS: true,
	EngineDES: true,
}

// IsValidEngine returns true if the given name is a recognized engine.
func IsValidEngine(name string) bool {
	return validEngines[name]
}

// NewEngine constructs the named engine.
func NewEngine(name string, cfg RunConfig) (Engine, error) {
	var (
		e   Engine
		err error
	)
	switch name {
	case EngineABS:
		e, err = NewABSEngine(cfg)
	case EngineDES:
		e, err = NewDESEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown engine %q; valid: abs, des", name)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
