package cache_test

import (
	"testing"

	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	Items []string `json:"items"`
	Total int64    `json:"total"`
}

func TestCodecs(t *testing.T) {
	registry := cache.NewTypeRegistry(page{}, &page{})

	for _, name := range []string{"json", "cbor"} {
		codec, err := cache.NewCodec(name, registry)
		require.NoError(t, err)
		require.Equal(t, name, codec.Name())

		t.Run(name+"/Value", func(t *testing.T) {
			data, err := codec.Marshal(page{Items: []string{"a", "b"}, Total: 2})
			require.NoError(t, err)

			got, err := codec.Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, page{Items: []string{"a", "b"}, Total: 2}, got)
		})

		t.Run(name+"/Pointer", func(t *testing.T) {
			data, err := codec.Marshal(&page{Total: 7})
			require.NoError(t, err)

			got, err := codec.Unmarshal(data)
			require.NoError(t, err)
			require.IsType(t, &page{}, got)
			assert.Equal(t, int64(7), got.(*page).Total)
		})

		t.Run(name+"/Nil", func(t *testing.T) {
			data, err := codec.Marshal(nil)
			require.NoError(t, err)

			got, err := codec.Unmarshal(data)
			require.NoError(t, err)
			assert.Nil(t, got)
		})

		t.Run(name+"/Unregistered", func(t *testing.T) {
			_, err := codec.Marshal(struct{ X int }{1})
			assert.ErrorIs(t, err, cache.ErrUnregisteredType)
		})
	}

	t.Run("UnknownCodec", func(t *testing.T) {
		_, err := cache.NewCodec("gob", registry)
		assert.Error(t, err)
	})
}
