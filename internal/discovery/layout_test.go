package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayouts(t *testing.T) {
	table := NewDefaultLayoutTable()

	amm, ok := table.Lookup(RaydiumAMMv4Program, "initialize2")
	require.True(t, ok)
	assert.True(t, amm.IsAmm)
	assert.Equal(t, [3]int{4, 8, 9}, [3]int{amm.PoolID, amm.MintA, amm.MintB})

	clmm, ok := table.Lookup(RaydiumCLMMProgram, "OpenPositionV2")
	require.True(t, ok)
	assert.False(t, clmm.IsAmm)
	assert.Equal(t, [3]int{5, 21, 20}, [3]int{clmm.PoolID, clmm.MintA, clmm.MintB})

	byProgram, ok := table.Lookup(RaydiumCLMMProgram, "")
	require.True(t, ok)
	assert.Equal(t, clmm, byProgram)

	_, ok = table.Lookup(RaydiumAMMv4Program, "OpenPositionV2")
	assert.False(t, ok)
	_, ok = table.Lookup("unknown", "")
	assert.False(t, ok)

	layouts := table.Layouts()
	require.Len(t, layouts, 2)
	assert.Equal(t, RaydiumAMMv4Program, layouts[0].ProgramID)
	assert.Equal(t, RaydiumCLMMProgram, layouts[1].ProgramID)
}

func TestLayoutTable_RegisterReplacesVersion(t *testing.T) {
	table := NewDefaultLayoutTable()
	table.Register(InstructionLayout{
		ProgramID:   RaydiumAMMv4Program,
		Instruction: "initialize2",
		Version:     "amm-v5",
		IsAmm:       true,
		PoolID:      1,
		MintA:       2,
		MintB:       3,
	})

	l, ok := table.Lookup(RaydiumAMMv4Program, "initialize2")
	require.True(t, ok)
	assert.Equal(t, "amm-v5", l.Version)
	assert.Len(t, table.Layouts(), 2)

	first, _ := table.Lookup(RaydiumAMMv4Program, "")
	assert.Equal(t, "amm-v5", first.Version)
}

func TestInstructionLayout_Extract(t *testing.T) {
	amm, _ := NewDefaultLayoutTable().Lookup(RaydiumAMMv4Program, "initialize2")

	got, err := amm.Extract(ammAccounts("pool", "mintA", "mintB"))
	require.NoError(t, err)
	assert.Equal(t, PoolAccounts{PoolID: "pool", MintA: "mintA", MintB: "mintB"}, got)

	_, err = amm.Extract(make([]string, 9))
	assert.Error(t, err)

	clmm, _ := NewDefaultLayoutTable().Lookup(RaydiumCLMMProgram, "OpenPositionV2")
	got, err = clmm.Extract(clmmAccounts("cpool", "cmintA", "cmintB"))
	require.NoError(t, err)
	assert.Equal(t, PoolAccounts{PoolID: "cpool", MintA: "cmintA", MintB: "cmintB"}, got)
}
