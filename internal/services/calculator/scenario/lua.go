// Package scenario loads calculator scenarios written in Lua and replays
// them against a fresh engine.
//
// A script builds one Scenario (or a list of them) and returns it:
//
//	local s = Scenario.new("chained operators")
//	s:key("2", "+", "3", "*", "4", "Enter")
//	s:expect("20")
//	return s
package scenario

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"
)

const scenarioTypeName = "calculator_scenario"

// Step kinds recorded by the Lua bindings.
const (
	StepPress        = "press"
	StepKey          = "key"
	StepAction       = "action"
	StepExpect       = "expect"
	StepExpectMemory = "expect_memory"
)

// Scenario is an ordered list of inputs and expectations.
type Scenario struct {
	Name  string
	Path  string
	Steps []Step
}

// Step is one recorded scenario call.
type Step struct {
	Kind string
	// Args holds the labels, keys, or type/value pair for input steps and the
	// expected display for expect steps.
	Args []string
	// Memory is the expected indicator for expect_memory steps.
	Memory bool
}

// LoadFile runs the script at path and returns the scenarios it builds.
func LoadFile(path string) ([]*Scenario, error) {
	state := newState()
	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	scenarios, err := collect(state, fallback)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, s := range scenarios {
		s.Path = path
	}
	return scenarios, nil
}

// LoadString runs src as a script named name.
func LoadString(name, src string) ([]*Scenario, error) {
	state := newState()
	if err := lua.LoadBuffer(state, src, name, "text"); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	return collect(state, name)
}

func newState() *lua.State {
	state := lua.NewState()
	lua.OpenLibraries(state)
	registerScenarioType(state)
	registerScenarioConstructor(state)
	return state
}

func collect(state *lua.State, fallbackName string) ([]*Scenario, error) {
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", err)
	}
	defer state.Pop(1)

	var scenarios []*Scenario
	switch state.TypeOf(-1) {
	case lua.TypeUserData:
		s, ok := state.ToUserData(-1).(*Scenario)
		if !ok || s == nil {
			return nil, fmt.Errorf("script returned invalid Scenario")
		}
		scenarios = append(scenarios, s)
	case lua.TypeTable:
		length := lua.LengthEx(state, -1)
		for i := 1; i <= length; i++ {
			state.RawGetInt(-1, i)
			s, ok := state.ToUserData(-1).(*Scenario)
			state.Pop(1)
			if !ok || s == nil {
				return nil, fmt.Errorf("script returned invalid Scenario at index %d", i)
			}
			scenarios = append(scenarios, s)
		}
	default:
		return nil, fmt.Errorf("script must return a Scenario or a list of Scenarios")
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("script returned no scenarios")
	}
	for i, s := range scenarios {
		if strings.TrimSpace(s.Name) != "" {
			continue
		}
		s.Name = fallbackName
		if len(scenarios) > 1 {
			s.Name = fmt.Sprintf("%s#%d", fallbackName, i+1)
		}
	}
	return scenarios, nil
}

func registerScenarioType(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

func registerScenarioConstructor(state *lua.State) {
	state.NewTable()
	lua.SetFunctions(state, scenarioConstructor, 0)
	state.SetGlobal("Scenario")
}

var scenarioConstructor = []lua.RegistryFunction{
	{Name: "new", Function: scenarioNew},
}

func scenarioNew(state *lua.State) int {
	name := lua.OptString(state, 1, "")
	state.PushUserData(&Scenario{Name: name})
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

var scenarioMethods = []lua.RegistryFunction{
	{Name: "press", Function: scenarioPress},
	{Name: "key", Function: scenarioKey},
	{Name: "action", Function: scenarioAction},
	{Name: "expect", Function: scenarioExpect},
	{Name: "expect_memory", Function: scenarioExpectMemory},
}

// Every method returns the scenario so calls can be chained.

func scenarioPress(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, Step{Kind: StepPress, Args: checkStrings(state, 2)})
	state.PushValue(1)
	return 1
}

func scenarioKey(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, Step{Kind: StepKey, Args: checkStrings(state, 2)})
	state.PushValue(1)
	return 1
}

func scenarioAction(state *lua.State) int {
	scenario := checkScenario(state)
	kind := lua.CheckString(state, 2)
	value := lua.OptString(state, 3, "")
	appendStep(scenario, Step{Kind: StepAction, Args: []string{kind, value}})
	state.PushValue(1)
	return 1
}

func scenarioExpect(state *lua.State) int {
	scenario := checkScenario(state)
	display := lua.CheckString(state, 2)
	appendStep(scenario, Step{Kind: StepExpect, Args: []string{display}})
	state.PushValue(1)
	return 1
}

func scenarioExpectMemory(state *lua.State) int {
	scenario := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeBoolean)
	appendStep(scenario, Step{Kind: StepExpectMemory, Memory: state.ToBoolean(2)})
	state.PushValue(1)
	return 1
}

func checkScenario(state *lua.State) *Scenario {
	ud := lua.CheckUserData(state, 1, scenarioTypeName)
	if scenario, ok := ud.(*Scenario); ok && scenario != nil {
		return scenario
	}
	lua.ArgumentError(state, 1, "scenario expected")
	return nil
}

// checkStrings reads every argument from index on. A single table argument
// is expanded as a list.
func checkStrings(state *lua.State, index int) []string {
	top := state.Top()
	if top == index && state.TypeOf(index) == lua.TypeTable {
		length := lua.LengthEx(state, index)
		values := make([]string, 0, length)
		for i := 1; i <= length; i++ {
			state.RawGetInt(index, i)
			value, ok := state.ToString(-1)
			state.Pop(1)
			if !ok {
				lua.ArgumentError(state, index, fmt.Sprintf("entry %d must be a string", i))
				return nil
			}
			values = append(values, value)
		}
		return values
	}
	if top < index {
		lua.ArgumentError(state, index, "at least one input expected")
		return nil
	}
	values := make([]string, 0, top-index+1)
	for i := index; i <= top; i++ {
		values = append(values, lua.CheckString(state, i))
	}
	return values
}

func appendStep(scenario *Scenario, step Step) {
	if scenario == nil {
		return
	}
	scenario.Steps = append(scenario.Steps, step)
}
