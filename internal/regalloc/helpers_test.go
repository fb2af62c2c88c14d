package regalloc

import (
	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/sgn/internal/arch"
)

func setOf(registers ...arch.Register) set.Set[arch.Register] {
	s := set.New[arch.Register]()
	for _, r := range registers {
		s.Add(r)
	}
	return s
}
