package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petshop/core"
)

func testPet(name, category string, available bool, gender core.Gender) *core.Pet {
	return &core.Pet{
		Name:      name,
		Category:  category,
		Available: available,
		Gender:    gender,
		Birthday:  core.NewDate(2020, time.May, 17),
	}
}

// runPetStoreContract exercises the behavior every PetStore backend must share
func runPetStoreContract(t *testing.T, store PetStore) {
	ctx := context.Background()

	t.Run("create assigns id and revision", func(t *testing.T) {
		require.NoError(t, store.RemoveAll(ctx))
		pet := testPet("fido", "dog", true, core.GenderMale)
		require.NoError(t, store.Create(ctx, pet))
		assert.NotEmpty(t, pet.ID)
		assert.NotEmpty(t, pet.Rev)

		found, err := store.Get(ctx, pet.ID)
		require.NoError(t, err)
		assert.Equal(t, pet, found)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrPetNotFound)
	})

	t.Run("update changes revision", func(t *testing.T) {
		require.NoError(t, store.RemoveAll(ctx))
		pet := testPet("kitty", "cat", true, core.GenderFemale)
		require.NoError(t, store.Create(ctx, pet))
		firstRev := pet.Rev

		pet.Category = "tiger"
		require.NoError(t, store.Update(ctx, pet))
		assert.NotEqual(t, firstRev, pet.Rev)

		found, err := store.Get(ctx, pet.ID)
		require.NoError(t, err)
		assert.Equal(t, "tiger", found.Category)
	})

	t.Run("stale revision conflicts", func(t *testing.T) {
		require.NoError(t, store.RemoveAll(ctx))
		pet := testPet("rex", "dog", true, core.GenderMale)
		require.NoError(t, store.Create(ctx, pet))
		stale := *pet

		require.NoError(t, store.Update(ctx, pet))
		assert.ErrorIs(t, store.Update(ctx, &stale), ErrConflict)
		assert.ErrorIs(t, store.Delete(ctx, stale.ID, stale.Rev), ErrConflict)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.RemoveAll(ctx))
		pet := testPet("nemo", "fish", true, core.GenderUnknown)
		require.NoError(t, store.Create(ctx, pet))

		require.NoError(t, store.Delete(ctx, pet.ID, pet.Rev))
		_, err := store.Get(ctx, pet.ID)
		assert.ErrorIs(t, err, ErrPetNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "does-not-exist", "1-abc"), ErrPetNotFound)
	})

	t.Run("all and find by", func(t *testing.T) {
		require.NoError(t, store.RemoveAll(ctx))
		for _, p := range []*core.Pet{
			testPet("fido", "dog", true, core.GenderMale),
			testPet("kitty", "cat", true, core.GenderFemale),
			testPet("rex", "dog", false, core.GenderMale),
		} {
			require.NoError(t, store.Create(ctx, p))
		}

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		dogs, err := store.FindBy(ctx, Selector{core.FieldCategory: "dog"})
		require.NoError(t, err)
		assert.Len(t, dogs, 2)

		availableDogs, err := store.FindBy(ctx, Selector{core.FieldCategory: "dog", core.FieldAvailable: true})
		require.NoError(t, err)
		require.Len(t, availableDogs, 1)
		assert.Equal(t, "fido", availableDogs[0].Name)

		females, err := store.FindBy(ctx, Selector{core.FieldGender: core.GenderFemale})
		require.NoError(t, err)
		require.Len(t, females, 1)
		assert.Equal(t, "kitty", females[0].Name)

		none, err := store.FindBy(ctx, Selector{core.FieldName: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("remove all", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, testPet("extra", "bird", true, core.GenderUnknown)))
		require.NoError(t, store.RemoveAll(ctx))

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
