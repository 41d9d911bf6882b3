package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milista/internal/model"
	"milista/internal/store/memstore"
)

func nuevaListaDePrueba(t *testing.T) (*memstore.Store, *Lista) {
	t.Helper()
	st := memstore.New()
	st.CrearPlace(model.Place{ID: "V1", Nombre: "Bar Demo"})

	l := NewLista(st, "V1")
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(l.Stop)
	return st, l
}

func precio(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return &d
}

func TestStartCargaPlace(t *testing.T) {
	_, l := nuevaListaDePrueba(t)

	place := l.Place()
	require.NotNil(t, place)
	assert.Equal(t, "Bar Demo", place.Nombre)
	assert.Empty(t, l.Items())
}

func TestStartPlaceInexistenteSigueSuscrito(t *testing.T) {
	st := memstore.New()
	l := NewLista(st, "V9")
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	assert.Nil(t, l.Place())
	assert.Equal(t, "Place no encontrado", l.Status())

	// the subscription still works despite the missing header
	_, err := l.Anadir(context.Background())
	require.NoError(t, err)
	assert.Len(t, l.Items(), 1)
}

func TestAnadirCalculaSiguienteCodigo(t *testing.T) {
	_, l := nuevaListaDePrueba(t)

	it, err := l.Anadir(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "V10001", it.Codigo)
	assert.Equal(t, model.TipoElemento, it.Tipo)
	assert.Empty(t, it.Nombre)
	assert.Nil(t, it.Precio)
	assert.Equal(t, "Item añadido", l.Status())

	it2, err := l.Anadir(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "V10002", it2.Codigo)
}

func TestEditarBorradorNoEscribeEnStore(t *testing.T) {
	st, l := nuevaListaDePrueba(t)
	it, err := l.Anadir(context.Background())
	require.NoError(t, err)

	nombre := "Caña"
	require.NoError(t, l.EditarBorrador(it.ID, model.ItemDoc{Nombre: &nombre}))

	guardado, ok := st.Item("V1", it.ID)
	require.True(t, ok)
	assert.Empty(t, guardado.Nombre, "el borrador no debe llegar al store")
	assert.Equal(t, "Caña", l.Items()[0].Nombre)
}

func TestGuardarItemPersisteBorrador(t *testing.T) {
	st, l := nuevaListaDePrueba(t)
	it, err := l.Anadir(context.Background())
	require.NoError(t, err)

	nombre := "Caña"
	require.NoError(t, l.EditarBorrador(it.ID, model.ItemDoc{
		Nombre: &nombre, Precio: precio(t, "1.50"), PrecioSet: true,
	}))
	require.NoError(t, l.GuardarItem(context.Background(), it.ID))

	guardado, ok := st.Item("V1", it.ID)
	require.True(t, ok)
	assert.Equal(t, "Caña", guardado.Nombre)
	require.NotNil(t, guardado.Precio)
	assert.True(t, guardado.Precio.Equal(decimal.RequireFromString("1.50")))
	assert.Equal(t, "Item guardado", l.Status())
}

func TestGuardarItemSeccionAnulaPrecio(t *testing.T) {
	st, l := nuevaListaDePrueba(t)
	it, err := l.Anadir(context.Background())
	require.NoError(t, err)

	tipo := model.TipoSeccion
	require.NoError(t, l.EditarBorrador(it.ID, model.ItemDoc{
		Tipo: &tipo, Precio: precio(t, "9.99"), PrecioSet: true,
	}))
	require.NoError(t, l.GuardarItem(context.Background(), it.ID))

	guardado, _ := st.Item("V1", it.ID)
	assert.Equal(t, model.TipoSeccion, guardado.Tipo)
	assert.Nil(t, guardado.Precio)
}

func TestSnapshotDescartaBorradores(t *testing.T) {
	// Regression guard: an incoming snapshot replaces the working copy
	// wholesale, unsaved edits included.
	_, l := nuevaListaDePrueba(t)
	it, err := l.Anadir(context.Background())
	require.NoError(t, err)

	nombre := "borrador sin guardar"
	require.NoError(t, l.EditarBorrador(it.ID, model.ItemDoc{Nombre: &nombre}))

	// a concurrent write triggers a fresh snapshot
	_, err = l.Anadir(context.Background())
	require.NoError(t, err)

	for _, fila := range l.Items() {
		assert.NotEqual(t, "borrador sin guardar", fila.Nombre)
	}
}

func TestBorrarSinConfirmar(t *testing.T) {
	st, l := nuevaListaDePrueba(t)
	it, err := l.Anadir(context.Background())
	require.NoError(t, err)
	statusPrevio := l.Status()

	err = l.Borrar(context.Background(), it.ID, false)
	require.ErrorIs(t, err, ErrConfirmacionRequerida)

	_, ok := st.Item("V1", it.ID)
	assert.True(t, ok, "sin confirmar el store no se toca")
	assert.Equal(t, statusPrevio, l.Status(), "sin confirmar el status no cambia")
}

func TestBorrarConfirmado(t *testing.T) {
	st, l := nuevaListaDePrueba(t)
	it, err := l.Anadir(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.Borrar(context.Background(), it.ID, true))

	_, ok := st.Item("V1", it.ID)
	assert.False(t, ok)
	assert.Equal(t, "Item borrado", l.Status())
}

func TestGuardarCabecera(t *testing.T) {
	st, l := nuevaListaDePrueba(t)

	cab := model.Cabecera{Nombre: "Bar Nuevo", Telefono: "", Direccion: "Calle 2", Poblacion: ""}
	require.NoError(t, l.GuardarCabecera(context.Background(), cab))
	assert.Equal(t, "Cabecera guardada", l.Status())

	place, err := st.FindPlace(context.Background(), "V1")
	require.NoError(t, err)
	assert.Equal(t, "Bar Nuevo", place.Nombre)
	assert.Empty(t, place.Telefono, "los campos vacios se guardan tal cual")
}

func TestGuardarCabeceraErrorConservaEdicionLocal(t *testing.T) {
	st, l := nuevaListaDePrueba(t)
	st.WriteErr = errors.New("caida simulada")

	err := l.GuardarCabecera(context.Background(), model.Cabecera{Nombre: "Editado"})
	require.Error(t, err)
	assert.Contains(t, l.Status(), "Error guardando cabecera")
	assert.Equal(t, "Editado", l.Place().Nombre, "la edicion local se conserva")
}

func TestImportarCSV(t *testing.T) {
	st, l := nuevaListaDePrueba(t)

	csv := "id,codigo,tipo,nombre,precio\n" +
		"\"V10000\",\"V10000\",\"seccion\",\"Bebidas\",\"\"\n" +
		"\"V10001\",\"V10001\",\"elemento\",\"Caña\",\"1.50\"\n"

	n, err := l.ImportarCSV(context.Background(), []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "CSV subido correctamente!", l.Status())

	seccion, _ := st.Item("V1", "V10000")
	assert.Nil(t, seccion.Precio)
	elemento, _ := st.Item("V1", "V10001")
	require.NotNil(t, elemento.Precio)
	assert.True(t, elemento.Precio.Equal(decimal.RequireFromString("1.50")))
}

func TestImportarCSVVacioEsNoOp(t *testing.T) {
	_, l := nuevaListaDePrueba(t)
	statusPrevio := l.Status()

	n, err := l.ImportarCSV(context.Background(), []byte("id,codigo\n"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, statusPrevio, l.Status())
}

func TestImportarCSVPrecioInvalidoAbortaTodo(t *testing.T) {
	st, l := nuevaListaDePrueba(t)

	csv := "id,codigo,tipo,nombre,precio\n" +
		"\"V10001\",\"V10001\",\"elemento\",\"Caña\",\"1.50\"\n" +
		"\"V10002\",\"V10002\",\"elemento\",\"Vino\",\"abc\"\n"

	_, err := l.ImportarCSV(context.Background(), []byte(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fila 3")
	assert.Contains(t, l.Status(), "Error subiendo CSV")

	_, ok := st.Item("V1", "V10001")
	assert.False(t, ok, "ninguna fila se escribe si el fichero no valida entero")
}

func TestExportarCSV(t *testing.T) {
	_, l := nuevaListaDePrueba(t)
	it, err := l.Anadir(context.Background())
	require.NoError(t, err)

	nombre := "Caña"
	require.NoError(t, l.EditarBorrador(it.ID, model.ItemDoc{
		Nombre: &nombre, Precio: precio(t, "1.5"), PrecioSet: true,
	}))

	archivo, data := l.ExportarCSV()
	assert.Equal(t, "lista.csv", archivo)
	// the export reflects the displayed copy, drafts included
	assert.Equal(t,
		"id,codigo,tipo,nombre,precio\n\"V10001\",\"V10001\",\"elemento\",\"Caña\",\"1.5\"",
		string(data))
}

func TestStreamCancelConcurrenteConEntregas(t *testing.T) {
	// A cancel that lands while a store callback is fanning out must never
	// panic with a send on a closed channel.
	_, l := nuevaListaDePrueba(t)

	for i := 0; i < 100; i++ {
		ch, cancel := l.Stream()
		drained := make(chan struct{})
		go func() {
			for range ch {
			}
			close(drained)
		}()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.onSnapshot([]model.Item{{ID: "V10001", Codigo: "V10001"}})
			}
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
		wg.Wait()
		<-drained
	}
}

func TestStreamRecibeSnapshots(t *testing.T) {
	_, l := nuevaListaDePrueba(t)
	ch, cancel := l.Stream()
	defer cancel()

	_, err := l.Anadir(context.Background())
	require.NoError(t, err)

	snap := <-ch
	require.Len(t, snap, 1)
	assert.Equal(t, "V10001", snap[0].Codigo)

	cancel()
	cancel() // idempotent
	_, abierto := <-ch
	assert.False(t, abierto)
}
