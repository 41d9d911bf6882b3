package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"milista/internal/codigo"
	"milista/internal/csvcodec"
	"milista/internal/model"
	"milista/internal/store"
)

// ErrConfirmacionRequerida is returned by Borrar when the caller has not
// confirmed the deletion. The store is left untouched.
var ErrConfirmacionRequerida = errors.New("confirmacion requerida para borrar")

// ErrItemNoEncontrado: the referenced row is not in the working copy.
var ErrItemNoEncontrado = errors.New("item no encontrado")

// Lista is the controller for one place's item list. It owns an in-memory
// working copy fed by the store subscription and executes every
// user-initiated operation against the store. Row edits (EditarBorrador) are
// local-only until an explicit save; an incoming snapshot replaces the whole
// working copy, unsaved edits included. That overwrite mirrors the realtime
// grid this system fronts and is guarded by a regression test.
//
// Every operation outcome, success or failure, overwrites the single status
// message. Failures never tear the session down and nothing is retried: the
// user retries by re-invoking the action.
type Lista struct {
	st      store.Client
	placeID string

	mu      sync.Mutex
	place   *model.Place
	items   []model.Item
	status  string
	unsub   store.Unsubscribe
	streams map[int]chan []model.Item
	nextStr int
}

func NewLista(st store.Client, placeID string) *Lista {
	return &Lista{
		st:      st,
		placeID: placeID,
		streams: make(map[int]chan []model.Item),
	}
}

// Start loads the place header and opens the item subscription. A missing or
// unreadable place sets a status message but does not abort: the lista still
// subscribes, matching the original flow. A failed subscription is fatal for
// the controller.
func (l *Lista) Start(ctx context.Context) error {
	place, err := l.st.FindPlace(ctx, l.placeID)
	switch {
	case store.IsNotFound(err):
		l.setStatus("Place no encontrado")
	case err != nil:
		l.setStatus("Error cargando place: " + err.Error())
	default:
		l.mu.Lock()
		l.place = place
		l.mu.Unlock()
	}

	unsub, err := l.st.SubscribeLista(ctx, l.placeID, l.onSnapshot, l.onError)
	if err != nil {
		l.setStatus("Error cargando lista: " + err.Error())
		return err
	}
	l.mu.Lock()
	l.unsub = unsub
	l.mu.Unlock()
	return nil
}

// Stop tears the subscription down. Idempotent; must run whenever the active
// place changes or the session ends so no listener leaks against a stale id.
func (l *Lista) Stop() {
	l.mu.Lock()
	unsub := l.unsub
	l.unsub = nil
	for id, ch := range l.streams {
		close(ch)
		delete(l.streams, id)
	}
	l.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// onSnapshot replaces the working copy wholesale. Unsaved local edits are
// discarded by design. Stream delivery happens under the mutex: the channels
// are buffered and the sends non-blocking, and Stop/cancel close them under
// the same mutex, so a send can never race a close.
func (l *Lista) onSnapshot(items []model.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = items
	for _, ch := range l.streams {
		select {
		case ch <- items:
		default: // slow consumer drops intermediate snapshots
		}
	}
}

func (l *Lista) onError(err error) {
	log.Error().Str("place_id", l.placeID).Err(err).Msg("error en la suscripcion de lista")
	l.setStatus("Error cargando lista: " + err.Error())
}

func (l *Lista) setStatus(msg string) {
	l.mu.Lock()
	l.status = msg
	l.mu.Unlock()
}

// ── Accessors ────────────────────────────────────────────────────────────────

func (l *Lista) PlaceID() string { return l.placeID }

func (l *Lista) Place() *model.Place {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.place == nil {
		return nil
	}
	p := *l.place
	return &p
}

func (l *Lista) Items() []model.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := make([]model.Item, len(l.items))
	copy(items, l.items)
	return items
}

// Status returns the last operation's outcome message.
func (l *Lista) Status() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Stream registers a snapshot channel for realtime consumers (SSE). The
// returned cancel is idempotent.
func (l *Lista) Stream() (<-chan []model.Item, func()) {
	ch := make(chan []model.Item, 1)
	l.mu.Lock()
	id := l.nextStr
	l.nextStr++
	l.streams[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			if c, ok := l.streams[id]; ok {
				close(c)
				delete(l.streams, id)
			}
			l.mu.Unlock()
		})
	}
}

// ── Operations ───────────────────────────────────────────────────────────────

// GuardarCabecera rewrites the four header fields verbatim. The in-memory
// place keeps the user's edit whether the write succeeds or not — there is no
// optimistic rollback.
func (l *Lista) GuardarCabecera(ctx context.Context, cab model.Cabecera) error {
	l.mu.Lock()
	if l.place == nil {
		l.place = &model.Place{ID: l.placeID}
	}
	l.place.Nombre = cab.Nombre
	l.place.Telefono = cab.Telefono
	l.place.Direccion = cab.Direccion
	l.place.Poblacion = cab.Poblacion
	l.mu.Unlock()

	if err := l.st.UpdateCabecera(ctx, l.placeID, cab); err != nil {
		l.setStatus("Error guardando cabecera: " + err.Error())
		return err
	}
	l.setStatus("Cabecera guardada")
	return nil
}

// EditarBorrador applies a row edit to the working copy only. Nothing reaches
// the store until GuardarItem.
func (l *Lista) EditarBorrador(itemID string, doc model.ItemDoc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, it := range l.items {
		if it.ID == itemID {
			l.items[i] = doc.Aplicar(it)
			return nil
		}
	}
	return ErrItemNoEncontrado
}

// GuardarItem persists the working-copy row: exactly codigo, tipo, nombre and
// precio, with the seccion ⇒ null precio rule applied. The id is the document
// key and never part of the payload.
func (l *Lista) GuardarItem(ctx context.Context, itemID string) error {
	l.mu.Lock()
	var fila *model.Item
	for i := range l.items {
		if l.items[i].ID == itemID {
			fila = &l.items[i]
			break
		}
	}
	if fila == nil {
		l.mu.Unlock()
		return ErrItemNoEncontrado
	}
	doc := model.DocDeItem(*fila)
	l.mu.Unlock()

	if err := l.st.UpsertItem(ctx, l.placeID, itemID, doc); err != nil {
		l.setStatus("Error guardando item: " + err.Error())
		return err
	}
	l.setStatus("Item guardado")
	return nil
}

// Borrar deletes a row after an explicit confirmation. Without confirmation
// the store is not touched and the status stays as it was.
func (l *Lista) Borrar(ctx context.Context, itemID string, confirmado bool) error {
	if !confirmado {
		return ErrConfirmacionRequerida
	}
	if err := l.st.DeleteItem(ctx, l.placeID, itemID); err != nil {
		l.setStatus("Error borrando item: " + err.Error())
		return err
	}
	l.setStatus("Item borrado")
	return nil
}

// Anadir creates a new elemento with the next sequential code, empty name and
// no price. The code is recomputed against the current working copy right
// before the write; the subscription, not this call, is what eventually shows
// the row in the list.
func (l *Lista) Anadir(ctx context.Context) (model.Item, error) {
	l.mu.Lock()
	nuevo := codigo.Next(l.items, l.placeID)
	l.mu.Unlock()

	item := model.Item{
		ID:     nuevo,
		Codigo: nuevo,
		Tipo:   model.TipoElemento,
		Nombre: "",
		Precio: nil,
	}
	if err := l.st.UpsertItem(ctx, l.placeID, item.ID, model.DocDeItem(item)); err != nil {
		l.setStatus("Error añadiendo item: " + err.Error())
		return model.Item{}, err
	}
	l.setStatus("Item añadido")
	return item, nil
}

// ImportarCSV parses the uploaded file and bulk-merges its rows. A file that
// parses to zero registros is a silent no-op: no write, no status change. A
// registro with an invalid price or no usable id aborts the whole import
// before anything is written.
func (l *Lista) ImportarCSV(ctx context.Context, data []byte) (int, error) {
	regs := csvcodec.Parse(string(data))
	if len(regs) == 0 {
		return 0, nil
	}

	entries := make([]store.BatchEntry, 0, len(regs))
	for i, reg := range regs {
		doc, err := model.DocDeRegistro(reg)
		if err != nil {
			err = fmt.Errorf("fila %d: %w", i+2, err)
			l.setStatus("Error subiendo CSV: " + err.Error())
			return 0, err
		}
		id := reg["id"]
		if id == "" {
			err := fmt.Errorf("fila %d: sin id ni codigo", i+2)
			l.setStatus("Error subiendo CSV: " + err.Error())
			return 0, err
		}
		entries = append(entries, store.BatchEntry{ItemID: id, Doc: doc.Normalizar()})
	}

	if err := l.st.BulkUpsert(ctx, l.placeID, entries); err != nil {
		l.setStatus("Error subiendo CSV: " + err.Error())
		return 0, err
	}
	l.setStatus("CSV subido correctamente!")
	return len(entries), nil
}

// ExportarCSV serializes the currently displayed working copy — drafts
// included — and names the download lista.csv.
func (l *Lista) ExportarCSV() (nombre string, data []byte) {
	l.mu.Lock()
	filas := make([]csvcodec.Fila, len(l.items))
	for i, it := range l.items {
		filas[i] = csvcodec.FilaDeItem(it)
	}
	l.mu.Unlock()
	return "lista.csv", []byte(csvcodec.Serialize(filas))
}
