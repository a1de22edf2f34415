package discovery

import "fmt"

// Program addresses watched by the agent.
const (
	RaydiumAMMv4Program = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	RaydiumCLMMProgram  = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	OpenBookProgram     = "srmqPvymJeFKQ4zGQed1GFppgkRHB9kv5qtHZQsgjU8g"
)

// InstructionLayout gives the account-list positions of a pool-creating instruction.
// Positions are observed from mainnet transactions, not from a published schema.
type InstructionLayout struct {
	ProgramID   string
	Instruction string // log marker, e.g. "initialize2"
	Version     string
	IsAmm       bool
	PoolID      int
	MintA       int
	MintB       int
}

// PoolAccounts are the identifiers pulled out of an instruction's account list.
type PoolAccounts struct {
	PoolID string
	MintA  string
	MintB  string
}

// Extract reads pool and mint addresses from accounts.
func (l InstructionLayout) Extract(accounts []string) (PoolAccounts, error) {
	need := max(l.PoolID, l.MintA, l.MintB)
	if len(accounts) <= need {
		return PoolAccounts{}, fmt.Errorf("%s %s: have %d accounts, need %d", l.Version, l.Instruction, len(accounts), need+1)
	}
	return PoolAccounts{
		PoolID: accounts[l.PoolID],
		MintA:  accounts[l.MintA],
		MintB:  accounts[l.MintB],
	}, nil
}

type layoutKey struct {
	program     string
	instruction string
}

// LayoutTable maps (program, instruction) to account positions. A program upgrade
// that moves accounts is handled by registering a new layout.
type LayoutTable struct {
	byKey     map[layoutKey]InstructionLayout
	byProgram map[string][]InstructionLayout
	programs  []string
}

// NewLayoutTable creates a table holding layouts.
func NewLayoutTable(layouts ...InstructionLayout) *LayoutTable {
	t := &LayoutTable{
		byKey:     make(map[layoutKey]InstructionLayout),
		byProgram: make(map[string][]InstructionLayout),
	}
	for _, l := range layouts {
		t.Register(l)
	}
	return t
}

// DefaultLayouts are the Raydium AMM v4 and CLMM pool-creation layouts.
func DefaultLayouts() []InstructionLayout {
	return []InstructionLayout{
		{
			ProgramID:   RaydiumAMMv4Program,
			Instruction: "initialize2",
			Version:     "amm-v4",
			IsAmm:       true,
			PoolID:      4,
			MintA:       8,
			MintB:       9,
		},
		{
			ProgramID:   RaydiumCLMMProgram,
			Instruction: "OpenPositionV2",
			Version:     "clmm-v1",
			IsAmm:       false,
			PoolID:      5,
			MintA:       21,
			MintB:       20,
		},
	}
}

// NewDefaultLayoutTable returns a table with DefaultLayouts registered.
func NewDefaultLayoutTable() *LayoutTable {
	return NewLayoutTable(DefaultLayouts()...)
}

// Register adds or replaces a layout.
func (t *LayoutTable) Register(l InstructionLayout) {
	key := layoutKey{program: l.ProgramID, instruction: l.Instruction}
	if _, exists := t.byKey[key]; exists {
		list := t.byProgram[l.ProgramID]
		for i := range list {
			if list[i].Instruction == l.Instruction {
				list[i] = l
			}
		}
	} else {
		if len(t.byProgram[l.ProgramID]) == 0 {
			t.programs = append(t.programs, l.ProgramID)
		}
		t.byProgram[l.ProgramID] = append(t.byProgram[l.ProgramID], l)
	}
	t.byKey[key] = l
}

// Lookup returns the layout for (programID, instruction). An empty instruction
// selects the first layout registered for the program.
func (t *LayoutTable) Lookup(programID, instruction string) (InstructionLayout, bool) {
	if instruction == "" {
		list := t.byProgram[programID]
		if len(list) == 0 {
			return InstructionLayout{}, false
		}
		return list[0], true
	}
	l, ok := t.byKey[layoutKey{program: programID, instruction: instruction}]
	return l, ok
}

// Layouts returns every registered layout in registration order.
func (t *LayoutTable) Layouts() []InstructionLayout {
	var out []InstructionLayout
	for _, p := range t.programs {
		out = append(out, t.byProgram[p]...)
	}
	return out
}
