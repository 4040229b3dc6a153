package lzms

import "encoding/binary"

// Constants governing the x86 filter's "is this call/jmp target plausible"
// heuristic (§4.B.3). wimlib's own constants are not reproduced bit-for-bit
// (see slots.go's note on Non-goals); these are a resolved Open Question,
// recorded in DESIGN.md.
const (
	MaxGoodTargetOffset       = 0x3fffffff
	defaultMaxTranslationOffs = 0x00400000
)

type x86OpForm struct {
	name                  string
	operandOffset         int
	instrLen              int
	maxTranslationOffset  int64
}

// classify returns the opcode form matching data at i, or ok=false if none
// of the recognised call/jmp/jcc/lea/lock-add/indirect-call forms match.
func classify(data []byte, i int) (form x86OpForm, ok bool) {
	b := data[i]
	switch {
	case b == 0xe8: // call rel32
		return x86OpForm{"call-rel", 1, 5, defaultMaxTranslationOffs}, true
	case b == 0xe9: // jmp rel32
		return x86OpForm{"jmp-rel", 1, 5, defaultMaxTranslationOffs}, true
	case b == 0x0f && i+1 < len(data) && data[i+1] >= 0x80 && data[i+1] <= 0x8f: // jcc rel32
		return x86OpForm{"load-rel", 2, 6, defaultMaxTranslationOffs}, true
	case b == 0x8d && i+1 < len(data) && (data[i+1]&0xc7) == 0x05: // lea reg, [disp32]
		return x86OpForm{"lea-rel", 2, 6, defaultMaxTranslationOffs}, true
	case b == 0xf0 && i+1 < len(data) && data[i+1] == 0x01 && i+2 < len(data) && (data[i+2]&0xc7) == 0x05: // lock add [disp32], reg
		return x86OpForm{"lock-add-rel", 3, 7, defaultMaxTranslationOffs}, true
	case b == 0xff && i+1 < len(data) && (data[i+1] == 0x15 || data[i+1] == 0x25): // call/jmp [disp32]
		return x86OpForm{"call-ind", 2, 6, defaultMaxTranslationOffs}, true
	default:
		return x86OpForm{}, false
	}
}

// X86Filter implements §4.B.3: rewrite (undo=false) or restore (undo=true)
// 32-bit relative operands of recognised call/jmp/jcc/lea/lock-add/indirect
// forms, using a target-window heuristic to avoid mistranslating data that
// merely looks like one of these opcodes. usages must be a caller-owned
// scratch array of length 65536; it is reset to the algorithm's initial
// state on every call so the filter is reentrant across worker threads that
// each own their own scratch buffer (§5).
func X86Filter(data []byte, usages []int32, undo bool) {
	if len(usages) < 1<<16 {
		panic("lzms: X86Filter requires a 65536-entry scratch array")
	}
	for i := range usages {
		usages[i] = -(MaxGoodTargetOffset + 1)
	}
	closestTargetUsage := int64(-(defaultMaxTranslationOffs + 1))

	size := len(data)
	for i := 0; i+11 <= size; {
		form, ok := classify(data, i)
		if !ok {
			i++
			continue
		}
		operandAt := i + form.operandOffset
		if operandAt+4 > size {
			i++
			continue
		}
		windowLo := binary.LittleEndian.Uint16(data[operandAt : operandAt+2])
		pos := (i + int(windowLo)) & 0xffff

		if int64(i)-closestTargetUsage <= form.maxTranslationOffset {
			operand := binary.LittleEndian.Uint32(data[operandAt : operandAt+4])
			if undo {
				operand -= uint32(i)
			} else {
				operand += uint32(i)
			}
			binary.LittleEndian.PutUint32(data[operandAt:operandAt+4], operand)
		}

		oldUsage := usages[pos]
		newUsage := int32(i + form.operandOffset + 4 - 1)
		usages[pos] = newUsage
		if int64(i)-int64(oldUsage) <= MaxGoodTargetOffset {
			closestTargetUsage = int64(newUsage)
		}

		i += form.operandOffset + 4
	}
}
