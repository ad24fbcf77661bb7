package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUnitsOrdering(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	err := database.InsertUnits(ctx, []Unit{
		{Floor: 3, Name: "Server Room", EquipmentType: "it"},
		{Floor: 1, Name: "Packing", EquipmentType: "conveyor"},
		{Floor: 1, Name: "Assembly", EquipmentType: "hvac"},
	})
	require.NoError(t, err)

	units, err := database.ListUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 3)

	// Floor ascending, then name.
	assert.Equal(t, "Assembly", units[0].Name)
	assert.Equal(t, "Packing", units[1].Name)
	assert.Equal(t, 3, units[2].Floor)
}

func TestListUnitsExcludesInvalidFloors(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	err := database.InsertUnits(ctx, []Unit{
		{Floor: 0, Name: "Ghost"},
		{Floor: -2, Name: "Basement"},
		{Floor: 2, Name: "Lab"},
	})
	require.NoError(t, err)

	units, err := database.ListUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "Lab", units[0].Name)
}
