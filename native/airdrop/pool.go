package airdrop

// CodePool is the FIFO queue of pre-provisioned codes. The zero value is
// ready to use.
type CodePool struct {
	codes  []Code
	queued map[Code]struct{}
}

// Add appends codes to the back of the pool.
func (p *CodePool) Add(codes ...Code) {
	if p.queued == nil {
		p.queued = make(map[Code]struct{}, len(codes))
	}
	for _, code := range codes {
		p.queued[code] = struct{}{}
	}
	p.codes = append(p.codes, codes...)
}

// Draw removes and returns the oldest code.
func (p *CodePool) Draw() (Code, error) {
	if len(p.codes) == 0 {
		return "", ErrNoMoreCodes
	}
	code := p.codes[0]
	delete(p.queued, code)
	p.codes[0] = ""
	p.codes = p.codes[1:]
	return code, nil
}

// DrawN removes exactly n codes or, when fewer remain, none at all.
func (p *CodePool) DrawN(n int) ([]Code, error) {
	if n < 0 || len(p.codes) < n {
		return nil, ErrNoMoreCodes
	}
	out := make([]Code, n)
	copy(out, p.codes[:n])
	for i := 0; i < n; i++ {
		delete(p.queued, p.codes[i])
		p.codes[i] = ""
	}
	p.codes = p.codes[n:]
	return out, nil
}

// Len returns the number of codes left.
func (p *CodePool) Len() int {
	return len(p.codes)
}

// Contains reports whether code is still waiting in the pool.
func (p *CodePool) Contains(code Code) bool {
	_, ok := p.queued[code]
	return ok
}

func (p *CodePool) snapshot() []Code {
	out := make([]Code, len(p.codes))
	copy(out, p.codes)
	return out
}
