package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-collab/internal/maputil"
)

func cadastre() Layer {
	return Layer{
		Title:      "Cadastre",
		Service:    "https://data.geopf.fr/wms-r",
		SchemaType: maputil.SchemaWMS,
		Options:    map[string]any{"layers": "CADASTRALPARCELS.PARCELLAIRE_EXPRESS", "format": "image/png"},
	}
}

func osm() Layer {
	return Layer{
		Title:      "OSM",
		Service:    "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		SchemaType: maputil.SchemaTMS,
		Options:    map[string]any{"maxZoom": 19},
	}
}

func TestLayerCRUD(t *testing.T) {
	dir := t.TempDir()
	bus := NewEventBus()
	events := bus.Subscribe()
	s := NewLayerService(dir, bus)

	created, err := s.Create(cadastre())
	require.NoError(t, err)
	require.Equal(t, 1, created.ID)
	require.Equal(t, Event{Resource: "layers", Action: "created", ID: "1"}, <-events)

	second, err := s.Create(osm())
	require.NoError(t, err)
	require.Equal(t, 2, second.ID)
	<-events

	_, err = s.Create(Layer{ID: 1, Title: "dup", Service: "x", SchemaType: maputil.SchemaTMS})
	require.ErrorIs(t, err, ErrExists)

	got, ok := s.Get(1)
	require.True(t, ok)
	require.Equal(t, "Cadastre", got.Title)

	upd := cadastre()
	upd.Title = "Parcelles"
	updated, err := s.Update(1, upd)
	require.NoError(t, err)
	require.Equal(t, 1, updated.ID)
	require.Equal(t, "updated", (<-events).Action)

	_, err = s.Update(9, upd)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(2))
	require.ErrorIs(t, s.Delete(2), ErrNotFound)

	list := s.List()
	require.Len(t, list, 1)
	require.Equal(t, "Parcelles", list[0].Title)

	// A fresh service reads back what was persisted.
	reloaded := NewLayerService(dir, nil)
	require.Equal(t, list, reloaded.List())
}

func TestLayerValidation(t *testing.T) {
	s := NewLayerService(t.TempDir(), nil)

	bad := cadastre()
	bad.SchemaType = "wmts"
	_, err := s.Create(bad)
	require.ErrorIs(t, err, ErrInvalid)

	bad = cadastre()
	bad.Service = ""
	_, err = s.Create(bad)
	require.True(t, errors.Is(err, ErrInvalid))
	require.Empty(t, s.List())
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch)

	_, open := <-ch
	require.False(t, open)

	bus.Publish(Event{Resource: "layers"})

	var nilBus *EventBus
	nilBus.Publish(Event{Resource: "layers"})
}
