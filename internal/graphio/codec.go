package graphio

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// EncodeJSON writes snap as indented JSON.
func EncodeJSON(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// DecodeJSON reads a snapshot written by EncodeJSON.
func DecodeJSON(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

type hclFile struct {
	UUIDMap     map[string]int  `hcl:"uuid_map,optional"`
	Threads     []hclThread     `hcl:"thread,block"`
	Nodes       []hclNode       `hcl:"node,block"`
	Connections []hclConnection `hcl:"connection,block"`
}

type hclThread struct {
	Name string `hcl:"name,label"`
	ID   int    `hcl:"id"`
}

type hclNode struct {
	UUID          string    `hcl:"uuid,label"`
	Type          string    `hcl:"type"`
	Pos           []float64 `hcl:"pos,optional"`
	Label         string    `hcl:"label,optional"`
	Enabled       *bool     `hcl:"enabled,optional"`
	ThreadID      int       `hcl:"thread_id,optional"`
	ThreadName    string    `hcl:"thread_name,optional"`
	TickFrequency float64   `hcl:"tick_frequency,optional"`
	Params        cty.Value `hcl:"params,optional"`
}

type hclConnection struct {
	From    string      `hcl:"from,label"`
	Targets []hclTarget `hcl:"target,block"`
}

type hclTarget struct {
	To       string       `hcl:"to,label"`
	Kind     string       `hcl:"kind,optional"`
	Fulcrums []hclFulcrum `hcl:"fulcrum,block"`
}

type hclFulcrum struct {
	Pos  []float64 `hcl:"pos"`
	In   []float64 `hcl:"handle_in,optional"`
	Out  []float64 `hcl:"handle_out,optional"`
	Type int       `hcl:"type,optional"`
}

// EncodeHCL writes snap in the HCL layout read by DecodeHCL.
func EncodeHCL(w io.Writer, snap *Snapshot) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	if len(snap.UUIDMap) > 0 {
		counters := make(map[string]cty.Value, len(snap.UUIDMap))
		for k, v := range snap.UUIDMap {
			counters[k] = cty.NumberIntVal(int64(v))
		}
		body.SetAttributeValue("uuid_map", cty.MapVal(counters))
		body.AppendNewline()
	}

	for _, t := range snap.Threads {
		b := body.AppendNewBlock("thread", []string{t.Name}).Body()
		b.SetAttributeValue("id", cty.NumberIntVal(int64(t.ID)))
	}

	for _, n := range snap.Nodes {
		b := body.AppendNewBlock("node", []string{n.UUID.String()}).Body()
		b.SetAttributeValue("type", cty.StringVal(n.Type))
		b.SetAttributeValue("pos", pointVal(n.Pos))
		if n.State.Label != "" {
			b.SetAttributeValue("label", cty.StringVal(n.State.Label))
		}
		b.SetAttributeValue("enabled", cty.BoolVal(n.State.Enabled))
		if n.State.ThreadID != 0 {
			b.SetAttributeValue("thread_id", cty.NumberIntVal(int64(n.State.ThreadID)))
		}
		if n.State.ThreadName != "" {
			b.SetAttributeValue("thread_name", cty.StringVal(n.State.ThreadName))
		}
		if n.State.TickFrequency > 0 {
			b.SetAttributeValue("tick_frequency", cty.NumberFloatVal(n.State.TickFrequency))
		}
		if len(n.State.Params) > 0 {
			params := make(map[string]cty.Value, len(n.State.Params))
			for name, v := range n.State.Params {
				params[name] = v.Value
			}
			b.SetAttributeValue("params", cty.ObjectVal(params))
		}
	}

	fulcrums := make(map[[2]nodeid.UUID][]connector.Fulcrum, len(snap.Fulcrums))
	for _, fl := range snap.Fulcrums {
		fulcrums[[2]nodeid.UUID{fl.From, fl.To}] = fl.Fulcrums
	}
	for _, c := range snap.Connections {
		b := body.AppendNewBlock("connection", []string{c.From.String()}).Body()
		for _, t := range c.Targets {
			tb := b.AppendNewBlock("target", []string{t.To.String()}).Body()
			tb.SetAttributeValue("kind", cty.StringVal(t.Kind))
			for _, fl := range fulcrums[[2]nodeid.UUID{c.From, t.To}] {
				fb := tb.AppendNewBlock("fulcrum", nil).Body()
				fb.SetAttributeValue("pos", pointVal(fl.Pos))
				fb.SetAttributeValue("handle_in", pointVal(fl.In))
				fb.SetAttributeValue("handle_out", pointVal(fl.Out))
				fb.SetAttributeValue("type", cty.NumberIntVal(int64(fl.Type)))
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}

// DecodeHCL parses a snapshot written by EncodeHCL. filename is only used in
// diagnostics.
func DecodeHCL(src []byte, filename string) (*Snapshot, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL snapshot %s: %s", filename, diags.Error())
	}
	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL snapshot %s: %s", filename, diags.Error())
	}

	snap := &Snapshot{
		UUIDMap:     raw.UUIDMap,
		Nodes:       make([]Node, 0, len(raw.Nodes)),
		Connections: make([]Connection, 0, len(raw.Connections)),
	}
	for _, t := range raw.Threads {
		snap.Threads = append(snap.Threads, Thread{ID: t.ID, Name: t.Name})
	}

	for _, n := range raw.Nodes {
		id, err := nodeid.Parse(n.UUID)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.UUID, err)
		}
		params, err := paramsFromValue(n.Params)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.UUID, err)
		}
		snap.Nodes = append(snap.Nodes, Node{
			UUID: id,
			Type: n.Type,
			Pos:  toPoint(n.Pos),
			State: State{
				Label:         n.Label,
				Enabled:       n.Enabled == nil || *n.Enabled,
				ThreadID:      n.ThreadID,
				ThreadName:    n.ThreadName,
				TickFrequency: n.TickFrequency,
				Params:        params,
			},
		})
	}

	for _, c := range raw.Connections {
		from, err := nodeid.Parse(c.From)
		if err != nil {
			return nil, fmt.Errorf("connection %q: %w", c.From, err)
		}
		conn := Connection{From: from}
		for _, t := range c.Targets {
			to, err := nodeid.Parse(t.To)
			if err != nil {
				return nil, fmt.Errorf("connection %q: %w", c.From, err)
			}
			kind := t.Kind
			if kind == "" {
				kind = KindDefault
			}
			conn.Targets = append(conn.Targets, Target{To: to, Kind: kind})
			if len(t.Fulcrums) == 0 {
				continue
			}
			fl := Fulcrums{From: from, To: to}
			for _, f := range t.Fulcrums {
				fl.Fulcrums = append(fl.Fulcrums, connector.Fulcrum{
					Pos:  toPoint(f.Pos),
					In:   toPoint(f.In),
					Out:  toPoint(f.Out),
					Type: f.Type,
				})
			}
			snap.Fulcrums = append(snap.Fulcrums, fl)
		}
		snap.Connections = append(snap.Connections, conn)
	}
	return snap, nil
}

func paramsFromValue(v cty.Value) (map[string]ctyjson.SimpleJSONValue, error) {
	if v.Type() == cty.NilType || v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("params must be an object, got %s", v.Type().FriendlyName())
	}
	m := v.AsValueMap()
	out := make(map[string]ctyjson.SimpleJSONValue, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		out[name] = ctyjson.SimpleJSONValue{Value: m[name]}
	}
	return out, nil
}

func pointVal(p connector.Point) cty.Value {
	return cty.TupleVal([]cty.Value{cty.NumberFloatVal(p.X), cty.NumberFloatVal(p.Y)})
}

func toPoint(xs []float64) connector.Point {
	var p connector.Point
	if len(xs) > 0 {
		p.X = xs[0]
	}
	if len(xs) > 1 {
		p.Y = xs[1]
	}
	return p
}
