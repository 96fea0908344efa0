package hnsw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorruptSnapshot is returned by Deserialize for truncated or inconsistent input.
var ErrCorruptSnapshot = errors.New("corrupt hnsw snapshot")

// maxSerializedLevel bounds the per-node level accepted on load. Real graphs
// stay far below it; larger values only come from corrupt input.
const maxSerializedLevel = 64

// Serialize flattens the live part of the graph into a byte slice.
//
// Layout (little endian, every integer is an int32):
//
//	M | efConstruction | entryPoint | maxLevel | nodeCount
//	per node: keyLen key | level | vecLen floats... |
//	          per layer 0..level: count | count x (keyLen key)
//
// Deleted nodes are omitted and neighbors are written as keys, so the
// result does not depend on arena indices. entryPoint is the entry node's
// position in the written node sequence, or -1 if it was soft-deleted.
func (g *Graph) Serialize() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	position := make(map[uint32]int32, len(g.keyToIndex))
	size := 20
	for i, n := range g.nodes {
		if n.Deleted {
			continue
		}
		position[uint32(i)] = int32(len(position))
		size += 12 + len(n.Key) + 4*len(n.Vector) + 4*len(n.Connections)
	}

	ep := int32(-1)
	if g.maxLevel >= 0 {
		if p, ok := position[g.entryPoint]; ok {
			ep = p
		}
	}

	e := encoder{buf: make([]byte, 0, size)}
	e.int32(int32(g.m))
	e.int32(int32(g.efConstruction))
	e.int32(ep)
	e.int32(int32(g.maxLevel))
	e.int32(int32(len(position)))

	for _, n := range g.nodes {
		if n.Deleted {
			continue
		}
		e.string(n.Key)
		e.int32(int32(n.Level))
		e.int32(int32(len(n.Vector)))
		for _, f := range n.Vector {
			e.uint32(math.Float32bits(f))
		}
		for _, conns := range n.Connections {
			live := 0
			for _, nb := range conns {
				if !g.nodes[nb].Deleted {
					live++
				}
			}
			e.int32(int32(live))
			for _, nb := range conns {
				if !g.nodes[nb].Deleted {
					e.string(g.nodes[nb].Key)
				}
			}
		}
	}
	return e.buf, nil
}

// Deserialize replaces the graph contents with the snapshot in data.
//
// Nodes get fresh arena indices in file order and neighbor keys are resolved
// in a second pass; keys that are unknown, or whose node does not reach the
// layer, are dropped. The stored M and efConstruction are adopted since the
// neighbor lists were built with them. On error the graph is left unchanged.
func (g *Graph) Deserialize(data []byte) error {
	d := decoder{buf: data}

	m, err := d.int32("m")
	if err != nil {
		return err
	}
	efConstruction, err := d.int32("ef_construction")
	if err != nil {
		return err
	}
	storedEP, err := d.int32("entry_point")
	if err != nil {
		return err
	}
	storedMaxLevel, err := d.int32("max_level")
	if err != nil {
		return err
	}
	count, err := d.int32("node_count")
	if err != nil {
		return err
	}

	if m < 2 || m > MaxM || efConstruction < 1 {
		return fmt.Errorf("%w: bad parameters m=%d ef_construction=%d", ErrCorruptSnapshot, m, efConstruction)
	}
	if storedMaxLevel < -1 || storedMaxLevel > maxSerializedLevel {
		return fmt.Errorf("%w: bad max level %d", ErrCorruptSnapshot, storedMaxLevel)
	}
	// Every node needs at least keyLen, level, vecLen and one layer count.
	if count < 0 || int(count) > d.remaining()/16 {
		return fmt.Errorf("%w: bad node count %d", ErrCorruptSnapshot, count)
	}

	nodes := make([]*Node, 0, count)
	keyToIndex := make(map[string]uint32, count)
	neighborKeys := make([][][]string, count)

	for i := 0; i < int(count); i++ {
		key, err := d.string("key")
		if err != nil {
			return err
		}
		if _, dup := keyToIndex[key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrCorruptSnapshot, key)
		}
		level, err := d.int32("level")
		if err != nil {
			return err
		}
		if level < 0 || level > maxSerializedLevel {
			return fmt.Errorf("%w: node %q has level %d", ErrCorruptSnapshot, key, level)
		}
		vec, err := d.floats()
		if err != nil {
			return err
		}

		// Lists are sized from the decoded counts, not from M.
		n := &Node{Key: key, Vector: vec, Level: int(level), Connections: make([][]uint32, level+1)}
		layers := make([][]string, level+1)
		for l := range layers {
			nc, err := d.int32("neighbor_count")
			if err != nil {
				return err
			}
			if nc < 0 || int(nc) > d.remaining()/4 {
				return fmt.Errorf("%w: node %q has %d neighbors at layer %d", ErrCorruptSnapshot, key, nc, l)
			}
			layers[l] = make([]string, nc)
			for j := range layers[l] {
				if layers[l][j], err = d.string("neighbor_key"); err != nil {
					return err
				}
			}
		}

		keyToIndex[key] = uint32(len(nodes))
		nodes = append(nodes, n)
		neighborKeys[i] = layers
	}
	if d.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, d.remaining())
	}

	// Second pass: neighbor keys -> new indices.
	for i, n := range nodes {
		for l, keys := range neighborKeys[i] {
			capacity := layerCapacity(int(m), l)
			n.Connections[l] = make([]uint32, 0, min(len(keys), capacity))
			for _, k := range keys {
				idx, ok := keyToIndex[k]
				if !ok || idx == uint32(i) || nodes[idx].Level < l {
					continue
				}
				if len(n.Connections[l]) == capacity {
					break
				}
				n.Connections[l] = append(n.Connections[l], idx)
			}
		}
	}

	entryPoint, maxLevel := uint32(0), -1
	if len(nodes) > 0 {
		if storedEP >= 0 && int(storedEP) < len(nodes) && nodes[storedEP].Level == int(storedMaxLevel) {
			entryPoint, maxLevel = uint32(storedEP), int(storedMaxLevel)
		} else {
			entryPoint, maxLevel = highestNode(nodes)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset(int(m), int(efConstruction))
	g.nodes = nodes
	g.keyToIndex = keyToIndex
	g.entryPoint = entryPoint
	g.maxLevel = maxLevel
	return nil
}

// highestNode returns the first node with the highest level.
func highestNode(nodes []*Node) (uint32, int) {
	best, level := uint32(0), -1
	for i, n := range nodes {
		if n.Level > level {
			best, level = uint32(i), n.Level
		}
	}
	return best, level
}

type encoder struct {
	buf []byte
}

func (e *encoder) uint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) int32(v int32) {
	e.uint32(uint32(v))
}

func (e *encoder) string(s string) {
	e.int32(int32(len(s)))
	e.buf = append(e.buf, s...)
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) truncated(field string) error {
	return fmt.Errorf("%w: truncated reading %s at offset %d", ErrCorruptSnapshot, field, d.off)
}

func (d *decoder) uint32(field string) (uint32, error) {
	if d.remaining() < 4 {
		return 0, d.truncated(field)
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) int32(field string) (int32, error) {
	v, err := d.uint32(field)
	return int32(v), err
}

func (d *decoder) string(field string) (string, error) {
	n, err := d.int32(field + " length")
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > d.remaining() {
		return "", d.truncated(field)
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *decoder) floats() ([]float32, error) {
	n, err := d.int32("vector length")
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > d.remaining()/4 {
		return nil, d.truncated("vector")
	}
	vec := make([]float32, n)
	for i := range vec {
		bits, _ := d.uint32("vector")
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}
