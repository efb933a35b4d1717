package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fantasticism/lsim"
)

// pinAddr addresses a single pin as component id, pin role and index
// within that role.
type pinAddr struct {
	Component uint32 `json:"component"`
	Pin       string `json:"pin"` // "in", "out" or "ctl"
	Index     int    `json:"index"`
}

type request struct {
	Op        string   `json:"op"`
	Seq       int64    `json:"seq"`
	Circuit   string   `json:"circuit,omitempty"`
	Name      string   `json:"name,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Inputs    int      `json:"inputs,omitempty"`
	Bits      int      `json:"bits,omitempty"`
	Value     string   `json:"value,omitempty"`
	Port      string   `json:"port,omitempty"`
	Bit       int      `json:"bit,omitempty"`
	Component uint32   `json:"component,omitempty"`
	From      *pinAddr `json:"from,omitempty"`
	To        *pinAddr `json:"to,omitempty"`
}

type response struct {
	Seq       int64     `json:"seq"`
	Ok        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Component *uint32   `json:"component,omitempty"`
	Circuits  []string  `json:"circuits,omitempty"`
	State     *snapshot `json:"state,omitempty"`
}

type portState struct {
	Name     string   `json:"name"`
	Input    bool     `json:"input"`
	Values   []string `json:"values"`
	Conflict []bool   `json:"conflict"`
}

type snapshot struct {
	Circuit string      `json:"circuit"`
	Stable  bool        `json:"stable"`
	Passes  int         `json:"passes"`
	Ports   []portState `json:"ports"`
}

// dispatch decodes and executes one client command. It returns the
// reply for the issuing client and, for commands that changed the
// simulation, a state snapshot to broadcast. The simulation core treats
// malformed ids as contract violations and panics, so client input is
// fenced off with a recover here.
func (s *Server) dispatch(data []byte) (reply, notify []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return marshalResponse(response{Ok: false, Error: "invalid json: " + err.Error()}), nil
	}

	resp := response{Seq: req.Seq, Ok: true}
	var changed bool

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Errorf("command %q panicked: %v", req.Op, r)
				resp = response{Seq: req.Seq, Ok: false, Error: fmt.Sprint(r)}
				changed = false
			}
		}()
		changed = s.execute(&req, &resp)
	}()

	if !resp.Ok {
		s.logger.Debugf("command %q failed: %s", req.Op, resp.Error)
	}
	reply = marshalResponse(resp)
	if changed {
		s.mu.Lock()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		if snap != nil {
			notify = marshalResponse(response{Ok: true, State: snap})
		}
	}
	return reply, notify
}

// execute runs one command under the server lock. The returned bool
// reports whether simulation state changed and clients should be
// notified.
func (s *Server) execute(req *request, resp *response) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fail := func(err error) bool {
		resp.Ok = false
		resp.Error = err.Error()
		return false
	}

	switch req.Op {
	case "new_circuit":
		if _, err := s.lib.NewCircuit(req.Name); err != nil {
			return fail(err)
		}
		s.logger.Infof("circuit created: %s", req.Name)

	case "list_circuits":
		resp.Circuits = s.lib.Names()

	case "add":
		d := s.lib.Circuit(req.Circuit)
		if d == nil {
			return fail(errors.Errorf("unknown circuit %q", req.Circuit))
		}
		c, err := addComponent(d, req)
		if err != nil {
			return fail(err)
		}
		id := uint32(c.ID())
		resp.Component = &id

	case "connect":
		d := s.lib.Circuit(req.Circuit)
		if d == nil {
			return fail(errors.Errorf("unknown circuit %q", req.Circuit))
		}
		from, err := resolvePin(d, req.From)
		if err != nil {
			return fail(err)
		}
		to, err := resolvePin(d, req.To)
		if err != nil {
			return fail(err)
		}
		d.Connect(from, to)

	case "disconnect":
		d := s.lib.Circuit(req.Circuit)
		if d == nil {
			return fail(errors.Errorf("unknown circuit %q", req.Circuit))
		}
		if d.ComponentByID(lsim.ComponentID(req.Component)) == nil {
			return fail(errors.Errorf("unknown component %d", req.Component))
		}
		d.DisconnectComponent(lsim.ComponentID(req.Component))

	case "remove":
		d := s.lib.Circuit(req.Circuit)
		if d == nil {
			return fail(errors.Errorf("unknown circuit %q", req.Circuit))
		}
		if d.ComponentByID(lsim.ComponentID(req.Component)) == nil {
			return fail(errors.Errorf("unknown component %d", req.Component))
		}
		d.RemoveComponent(lsim.ComponentID(req.Component))

	case "instantiate":
		d := s.lib.Circuit(req.Circuit)
		if d == nil {
			return fail(errors.Errorf("unknown circuit %q", req.Circuit))
		}
		inst, err := d.Instantiate()
		if err != nil {
			return fail(err)
		}
		s.top = d
		s.sim = lsim.NewSimulator(inst)
		s.sim.SetMaxPasses(s.cfg.MaxPasses)
		s.sim.Init()
		s.res = lsim.StepResult{Stable: true}
		s.logger.Infof("circuit instantiated: %s", req.Circuit)
		resp.State = s.snapshotLocked()
		return true

	case "write":
		if s.sim == nil {
			return fail(errors.New("no circuit instantiated"))
		}
		v, err := parseValue(req.Value)
		if err != nil {
			return fail(err)
		}
		pin, err := s.portPin(true, req.Port, req.Bit)
		if err != nil {
			return fail(err)
		}
		s.sim.WritePin(pin, v)
		resp.State = s.snapshotLocked()
		return true

	case "step":
		if s.sim == nil {
			return fail(errors.New("no circuit instantiated"))
		}
		s.res = s.sim.Step()
		if !s.res.Stable {
			s.logger.Warnf("step did not settle after %d passes", s.res.Passes)
		}
		resp.State = s.snapshotLocked()
		return true

	case "run_until_change":
		if s.sim == nil {
			return fail(errors.New("no circuit instantiated"))
		}
		pin, err := s.portPin(false, req.Port, req.Bit)
		if err != nil {
			return fail(err)
		}
		s.res = s.sim.RunUntilPinChange(pin)
		resp.State = s.snapshotLocked()
		return true

	case "state":
		if s.sim == nil {
			return fail(errors.New("no circuit instantiated"))
		}
		resp.State = s.snapshotLocked()

	default:
		return fail(errors.Errorf("unknown op %q", req.Op))
	}
	return false
}

// addComponent maps a kind string to the matching builder call.
func addComponent(d *lsim.CircuitDescription, req *request) (*lsim.Component, error) {
	bits := req.Bits
	if bits <= 0 {
		bits = 1
	}
	inputs := req.Inputs
	if inputs <= 0 {
		inputs = 2
	}
	switch req.Kind {
	case "connector_in":
		return d.AddConnectorIn(req.Name, bits), nil
	case "connector_out":
		return d.AddConnectorOut(req.Name, bits), nil
	case "constant":
		v, err := parseValue(req.Value)
		if err != nil {
			return nil, err
		}
		return d.AddConstant(v), nil
	case "pull_resistor":
		v, err := parseValue(req.Value)
		if err != nil {
			return nil, err
		}
		return d.AddPullResistor(v), nil
	case "buffer":
		return d.AddBuffer(bits), nil
	case "tristate_buffer":
		return d.AddTriStateBuffer(bits), nil
	case "and":
		return d.AddAndGate(inputs), nil
	case "or":
		return d.AddOrGate(inputs), nil
	case "nand":
		return d.AddNandGate(inputs), nil
	case "nor":
		return d.AddNorGate(inputs), nil
	case "not":
		return d.AddNotGate(), nil
	case "xor":
		return d.AddXorGate(), nil
	case "xnor":
		return d.AddXnorGate(), nil
	case "sub_circuit":
		return d.AddSubCircuit(req.Name)
	}
	return nil, errors.Errorf("unknown component kind %q", req.Kind)
}

func resolvePin(d *lsim.CircuitDescription, addr *pinAddr) (lsim.PinID, error) {
	if addr == nil {
		return lsim.PinInvalid, errors.New("missing pin address")
	}
	c := d.ComponentByID(lsim.ComponentID(addr.Component))
	if c == nil {
		return lsim.PinInvalid, errors.Errorf("unknown component %d", addr.Component)
	}
	switch addr.Pin {
	case "in":
		if addr.Index < 0 || addr.Index >= c.NumInputs() {
			return lsim.PinInvalid, errors.Errorf("input pin %d out of range", addr.Index)
		}
		return c.InputPin(addr.Index), nil
	case "out":
		if addr.Index < 0 || addr.Index >= c.NumOutputs() {
			return lsim.PinInvalid, errors.Errorf("output pin %d out of range", addr.Index)
		}
		return c.OutputPin(addr.Index), nil
	case "ctl":
		if addr.Index < 0 || addr.Index >= c.NumControls() {
			return lsim.PinInvalid, errors.Errorf("control pin %d out of range", addr.Index)
		}
		return c.ControlPin(addr.Index), nil
	}
	return lsim.PinInvalid, errors.Errorf("unknown pin role %q", addr.Pin)
}

// portPin resolves a named port bit on the instantiated circuit. Input
// ports resolve to the connector's driving pin, output ports to its
// reading pin.
func (s *Server) portPin(input bool, name string, bit int) (lsim.PinID, error) {
	c, err := s.portConnector(input, name)
	if err != nil {
		return lsim.PinInvalid, err
	}
	if input {
		if bit < 0 || bit >= c.NumOutputs() {
			return lsim.PinInvalid, errors.Errorf("bit %d out of range for port %q", bit, name)
		}
		return c.OutputPin(bit), nil
	}
	if bit < 0 || bit >= c.NumInputs() {
		return lsim.PinInvalid, errors.Errorf("bit %d out of range for port %q", bit, name)
	}
	return c.InputPin(bit), nil
}

func (s *Server) portConnector(input bool, name string) (*lsim.Component, error) {
	typ := lsim.TypeConnectorOut
	if input {
		typ = lsim.TypeConnectorIn
	}
	for _, id := range s.top.ComponentIDsOfType(typ) {
		c := s.top.ComponentByID(id)
		if c.StringProperty(lsim.PropName, "") == name {
			return c, nil
		}
	}
	dir := "output"
	if input {
		dir = "input"
	}
	return nil, errors.Errorf("no %s port named %q", dir, name)
}

// snapshotLocked builds a state snapshot. Callers hold s.mu.
func (s *Server) snapshotLocked() *snapshot {
	if s.sim == nil {
		return nil
	}
	snap := &snapshot{
		Circuit: s.top.Name(),
		Stable:  s.res.Stable,
		Passes:  s.res.Passes,
	}
	for _, input := range []bool{true, false} {
		typ := lsim.TypeConnectorOut
		if input {
			typ = lsim.TypeConnectorIn
		}
		for _, id := range s.top.ComponentIDsOfType(typ) {
			c := s.top.ComponentByID(id)
			bits := c.NumInputs()
			if input {
				bits = c.NumOutputs()
			}
			ps := portState{
				Name:     c.StringProperty(lsim.PropName, ""),
				Input:    input,
				Values:   make([]string, bits),
				Conflict: make([]bool, bits),
			}
			for i := 0; i < bits; i++ {
				var pin lsim.PinID
				if input {
					pin = c.OutputPin(i)
				} else {
					pin = c.InputPin(i)
				}
				ps.Values[i] = s.sim.NodeValue(pin).String()
				ps.Conflict[i] = s.sim.NodeConflict(pin)
			}
			snap.Ports = append(snap.Ports, ps)
		}
	}
	return snap
}

func parseValue(s string) (lsim.Value, error) {
	switch s {
	case "false", "0":
		return lsim.ValueFalse, nil
	case "true", "1":
		return lsim.ValueTrue, nil
	case "undefined", "z":
		return lsim.ValueUndefined, nil
	case "error", "x":
		return lsim.ValueError, nil
	}
	return lsim.ValueUndefined, errors.Errorf("invalid value %q", s)
}

func marshalResponse(resp response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// response contains only plain data types
		panic(err)
	}
	return data
}
