package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milista/internal/model"
	"milista/internal/store"
)

func ptr[T any](v T) *T { return &v }

func docCompleto(codigo string, tipo model.Tipo, nombre string, precio *decimal.Decimal) model.ItemDoc {
	return model.ItemDoc{Codigo: &codigo, Tipo: &tipo, Nombre: &nombre, Precio: precio, PrecioSet: true}
}

func TestSubscribe_EntregaInmediataYOrdenada(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.UpsertItem(ctx, "V1", "V10002", docCompleto("V10002", model.TipoElemento, "b", nil)))
	require.NoError(t, s.UpsertItem(ctx, "V1", "V10001", docCompleto("V10001", model.TipoSeccion, "a", nil)))

	var snaps [][]model.Item
	unsub, err := s.SubscribeLista(ctx, "V1", func(items []model.Item) {
		snaps = append(snaps, items)
	}, func(error) {})
	require.NoError(t, err)
	defer unsub()

	require.Len(t, snaps, 1, "must fire immediately with current state")
	require.Len(t, snaps[0], 2)
	assert.Equal(t, "V10001", snaps[0][0].Codigo)
	assert.Equal(t, "V10002", snaps[0][1].Codigo)

	require.NoError(t, s.DeleteItem(ctx, "V1", "V10001"))
	require.Len(t, snaps, 2, "every write fires a new snapshot")
	assert.Len(t, snaps[1], 1)
}

func TestUnsubscribe_Idempotente(t *testing.T) {
	s := New()
	ctx := context.Background()

	n := 0
	unsub, err := s.SubscribeLista(ctx, "V1", func([]model.Item) { n++ }, func(error) {})
	require.NoError(t, err)
	unsub()
	unsub() // second call must be harmless

	require.NoError(t, s.UpsertItem(ctx, "V1", "V10001", docCompleto("V10001", model.TipoElemento, "", nil)))
	assert.Equal(t, 1, n, "only the immediate snapshot, nothing after unsubscribe")
}

func TestUpsert_MergeDejaCamposAusentesIntactos(t *testing.T) {
	s := New()
	ctx := context.Background()
	precio := decimal.RequireFromString("3.50")

	require.NoError(t, s.UpsertItem(ctx, "V1", "V10001",
		docCompleto("V10001", model.TipoElemento, "Caña", &precio)))

	// partial doc: only nombre — precio and tipo must survive
	require.NoError(t, s.UpsertItem(ctx, "V1", "V10001",
		model.ItemDoc{Nombre: ptr("Caña doble")}))

	it, ok := s.Item("V1", "V10001")
	require.True(t, ok)
	assert.Equal(t, "Caña doble", it.Nombre)
	assert.Equal(t, model.TipoElemento, it.Tipo)
	require.NotNil(t, it.Precio)
	assert.True(t, precio.Equal(*it.Precio))
}

func TestUpsert_SeccionFuerzaPrecioNulo(t *testing.T) {
	s := New()
	ctx := context.Background()
	precio := decimal.RequireFromString("9.99")

	doc := docCompleto("V10001", model.TipoSeccion, "Tapas", &precio).Normalizar()
	require.NoError(t, s.UpsertItem(ctx, "V1", "V10001", doc))

	it, ok := s.Item("V1", "V10001")
	require.True(t, ok)
	assert.Nil(t, it.Precio, "seccion must never carry a price")
}

func TestBulkUpsert_TodoONada(t *testing.T) {
	s := New()
	ctx := context.Background()

	entries := []store.BatchEntry{
		{ItemID: "V10001", Doc: docCompleto("V10001", model.TipoElemento, "a", nil)},
		{ItemID: "", Doc: docCompleto("V10002", model.TipoElemento, "b", nil)},
	}
	err := s.BulkUpsert(ctx, "V1", entries)

	var we *store.WriteError
	require.ErrorAs(t, err, &we)
	assert.Empty(t, s.Items("V1"), "a failing batch must not apply partially")
}

func TestBulkUpsert_LimiteDeLote(t *testing.T) {
	s := New()
	s.BatchLimit = 2
	ctx := context.Background()

	entries := make([]store.BatchEntry, 3)
	for i, id := range []string{"V10001", "V10002", "V10003"} {
		entries[i] = store.BatchEntry{ItemID: id, Doc: docCompleto(id, model.TipoElemento, "", nil)}
	}
	err := s.BulkUpsert(ctx, "V1", entries)
	assert.ErrorIs(t, err, store.ErrBatchTooLarge)
	assert.Empty(t, s.Items("V1"))
}

func TestUpdateCabecera_ReescribeLosCuatroCampos(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CrearPlace(model.Place{ID: "V1", Nombre: "Bar Paco", Telefono: "600111222"})

	require.NoError(t, s.UpdateCabecera(ctx, "V1", model.Cabecera{Nombre: "Bar Paco II"}))

	p, err := s.FindPlace(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "Bar Paco II", p.Nombre)
	assert.Equal(t, "", p.Telefono, "unset header fields are written as empty, verbatim")
}

func TestFindPlace_NoEncontrado(t *testing.T) {
	s := New()
	_, err := s.FindPlace(context.Background(), "nope")
	assert.True(t, store.IsNotFound(err))
}

func TestSignIn(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CrearCuenta("paco@bar.es", "secreta1", "uid-1"))

	var cambios []*model.Identity
	unsub := s.OnAuthChange(func(id *model.Identity) { cambios = append(cambios, id) })
	defer unsub()
	require.Len(t, cambios, 1, "fires once at registration")
	assert.Nil(t, cambios[0])

	id, err := s.SignIn(ctx, "paco@bar.es", "secreta1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", id.UID)
	assert.Equal(t, "paco@bar.es", id.Email)
	require.Len(t, cambios, 2)

	_, err = s.SignIn(ctx, "paco@bar.es", "mala")
	var ae *store.AuthError
	assert.True(t, errors.As(err, &ae))

	require.NoError(t, s.SignOut(ctx))
	require.Len(t, cambios, 3)
	assert.Nil(t, cambios[2])
}

func TestFindPerfil(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CrearPerfil("uid-1", "V1")

	perfil, err := s.FindPerfil(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "V1", perfil.PlaceID)

	_, err = s.FindPerfil(ctx, "uid-2")
	assert.True(t, store.IsNotFound(err))
}

func TestWriteErr_FallaTodaEscritura(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.WriteErr = errors.New("permiso denegado")

	var we *store.WriteError
	err := s.UpsertItem(ctx, "V1", "V10001", docCompleto("V10001", model.TipoElemento, "", nil))
	require.ErrorAs(t, err, &we)
	assert.ErrorAs(t, s.DeleteItem(ctx, "V1", "V10001"), &we)
	assert.ErrorAs(t, s.BulkUpsert(ctx, "V1", nil), &we)
}
