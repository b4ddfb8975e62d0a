package wasmhost

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/objbridge/abi"
)

// hostDeleteThis runs inside twin_delete while mu is held; the notification
// is queued for DeleteTwin to deliver.
func (l *Library) hostDeleteThis(_ context.Context, _ api.Module, stack []uint64) {
	l.pending = append(l.pending, deletion{
		serial: api.DecodeI32(stack[0]),
		kind:   abi.Kind(api.DecodeI32(stack[1])),
	})
}

func (l *Library) hostGetColor(ctx context.Context, mod api.Module, stack []uint64) {
	serial := api.DecodeI32(stack[0])
	out := api.DecodeU32(stack[1])
	uvw := abi.Vec3{
		X: api.DecodeF64(stack[2]),
		Y: api.DecodeF64(stack[3]),
		Z: api.DecodeF64(stack[4]),
	}
	mem := mod.Memory()
	du := readVec3(mem, out+16)
	dv := readVec3(mem, out+40)

	stack[0] = 0
	cb := l.cb.Load()
	if cb == nil || cb.EvaluatorGetColor == nil {
		return
	}
	var c abi.Color4f
	if !cb.EvaluatorGetColor(ctx, serial, uvw, du, dv, &c) {
		return
	}
	writeColor(mem, out, c)
	stack[0] = 1
}

func (l *Library) hostSimulateMaterial(ctx context.Context, mod api.Module, stack []uint64) {
	serial := api.DecodeI32(stack[0])
	out := api.DecodeU32(stack[1])

	stack[0] = 0
	cb := l.cb.Load()
	if cb == nil || cb.SimulateMaterial == nil {
		return
	}
	var m abi.SimulatedMaterial
	if !cb.SimulateMaterial(ctx, serial, &m, false) {
		return
	}
	writeMaterial(mod.Memory(), out, m)
	stack[0] = 1
}

// Scratch layouts, little endian:
//
//	color:    r g b a f32 at +0
//	du, dv:   x y z f64 at +16 and +40
//	material: diffuse, specular (4 x f32 each), shine, transparency,
//	          reflectivity (f64) at +32, +40, +48

func readVec3(mem api.Memory, off uint32) abi.Vec3 {
	x, _ := mem.ReadFloat64Le(off)
	y, _ := mem.ReadFloat64Le(off + 8)
	z, _ := mem.ReadFloat64Le(off + 16)
	return abi.Vec3{X: x, Y: y, Z: z}
}

func writeVec3(mem api.Memory, off uint32, v abi.Vec3) {
	mem.WriteFloat64Le(off, v.X)
	mem.WriteFloat64Le(off+8, v.Y)
	mem.WriteFloat64Le(off+16, v.Z)
}

func readColor(mem api.Memory, off uint32) abi.Color4f {
	r, _ := mem.ReadFloat32Le(off)
	g, _ := mem.ReadFloat32Le(off + 4)
	b, _ := mem.ReadFloat32Le(off + 8)
	a, _ := mem.ReadFloat32Le(off + 12)
	return abi.Color4f{R: r, G: g, B: b, A: a}
}

func writeColor(mem api.Memory, off uint32, c abi.Color4f) {
	mem.WriteFloat32Le(off, c.R)
	mem.WriteFloat32Le(off+4, c.G)
	mem.WriteFloat32Le(off+8, c.B)
	mem.WriteFloat32Le(off+12, c.A)
}

func readMaterial(mem api.Memory, off uint32) abi.SimulatedMaterial {
	shine, _ := mem.ReadFloat64Le(off + 32)
	transparency, _ := mem.ReadFloat64Le(off + 40)
	reflectivity, _ := mem.ReadFloat64Le(off + 48)
	return abi.SimulatedMaterial{
		Diffuse:      readColor(mem, off),
		Specular:     readColor(mem, off+16),
		Shine:        shine,
		Transparency: transparency,
		Reflectivity: reflectivity,
	}
}

func writeMaterial(mem api.Memory, off uint32, m abi.SimulatedMaterial) {
	writeColor(mem, off, m.Diffuse)
	writeColor(mem, off+16, m.Specular)
	mem.WriteFloat64Le(off+32, m.Shine)
	mem.WriteFloat64Le(off+40, m.Transparency)
	mem.WriteFloat64Le(off+48, m.Reflectivity)
}
