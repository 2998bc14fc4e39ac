package runtime

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
	"sync"
)

// Signature hashes use FNV-1a over a fixed seed so that hashes are stable
// across runs and can be precomputed by the parser.
const hashSeed uint64 = 0x51_75_69_6c_6c_00_00_01

// altZeroHash replaces a computed zero so that zero can mean "no hash".
const altZeroHash uint64 = 0x9e3779b97f4a7c15

func newHasher() hash.Hash64 {
	h := fnv.New64a()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], hashSeed)
	h.Write(seed[:])
	return h
}

func finish(h hash.Hash64) uint64 {
	sum := h.Sum64()
	if sum == 0 {
		return altZeroHash
	}
	return sum
}

func writeString(h hash.Hash64, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}

func writeUint(h hash.Hash64, n uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	h.Write(buf[:])
}

// CalcFnHash hashes (namespace, name, argument count). An empty namespace
// is the global namespace.
func CalcFnHash(namespace []string, name string, numParams int) uint64 {
	h := newHasher()
	writeUint(h, uint64(len(namespace)))
	for _, seg := range namespace {
		writeString(h, seg)
	}
	writeString(h, name)
	writeUint(h, uint64(numParams))
	return finish(h)
}

// CalcVarHash hashes a possibly-qualified variable name.
func CalcVarHash(namespace []string, name string) uint64 {
	h := newHasher()
	writeString(h, "$var")
	for _, seg := range namespace {
		writeString(h, seg)
	}
	writeString(h, name)
	return finish(h)
}

// CalcParamsHash hashes the sequence of argument type tokens.
func CalcParamsHash(types []TypeID) uint64 {
	h := newHasher()
	writeUint(h, uint64(len(types)))
	for _, t := range types {
		writeUint(h, typeHash(t))
	}
	return finish(h)
}

// CombineHashes folds a params hash into a base signature hash.
func CombineHashes(base, params uint64) uint64 {
	combined := base ^ (params*0x100000001b3 + 0x2545f4914f6cdd1d)
	if combined == 0 {
		return altZeroHash
	}
	return combined
}

// CalcFullHash is the signature hash including argument types.
func CalcFullHash(namespace []string, name string, types []TypeID) uint64 {
	return CombineHashes(CalcFnHash(namespace, name, len(types)), CalcParamsHash(types))
}

var typeHashes sync.Map

// typeHash assigns each type token a stable hash derived from its package
// path and name.
func typeHash(t TypeID) uint64 {
	if cached, ok := typeHashes.Load(t); ok {
		return cached.(uint64)
	}
	h := newHasher()
	if t.rt != nil {
		writeString(h, t.rt.PkgPath())
		writeString(h, t.rt.String())
	}
	sum := finish(h)
	typeHashes.Store(t, sum)
	return sum
}

// HashValue hashes a value for switch-case tables. Values that cannot be
// hashed (function pointers, foreign values, shared cells) report false.
func HashValue(v Value) (uint64, bool) {
	h := newHasher()
	if !hashInto(h, v) {
		return 0, false
	}
	return finish(h), true
}

func hashInto(h hash.Hash64, v Value) bool {
	writeUint(h, uint64(v.Kind()))
	switch x := v.data.(type) {
	case nil:
		return true
	case bool:
		if x {
			writeUint(h, 1)
		} else {
			writeUint(h, 0)
		}
	case int64:
		writeUint(h, uint64(x))
	case float64:
		writeUint(h, math.Float64bits(x))
	case rune:
		writeUint(h, uint64(x))
	case string:
		writeString(h, x)
	case *Array:
		writeUint(h, uint64(len(*x)))
		for _, el := range *x {
			if !hashInto(h, el) {
				return false
			}
		}
	case *Blob:
		writeUint(h, uint64(len(*x)))
		h.Write(*x)
	case *Map:
		ok := true
		writeUint(h, uint64(x.Len()))
		x.Each(func(key string, value *Value) bool {
			writeString(h, key)
			ok = hashInto(h, *value)
			return ok
		})
		return ok
	case Range:
		writeUint(h, uint64(x.Start))
		writeUint(h, uint64(x.End))
	case InclusiveRange:
		writeUint(h, uint64(x.Start))
		writeUint(h, uint64(x.End))
	default:
		if d, ok := v.AsDecimal(); ok {
			writeString(h, d.String())
			return true
		}
		if t, ok := v.AsTimestamp(); ok && !v.IsShared() {
			writeUint(h, uint64(t.UnixNano()))
			return true
		}
		return false
	}
	return true
}
