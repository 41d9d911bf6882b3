// Package memstore is a complete in-memory implementation of store.Client:
// the default backend for tests and STORE_BACKEND=memory development runs.
// Snapshot delivery is synchronous — every write fans the fresh, ordered
// collection out to all subscribers before returning.
package memstore

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"milista/internal/model"
	"milista/internal/store"
)

const defaultBatchLimit = 500

type cuenta struct {
	uid  string
	hash string
}

type listaSub struct {
	onSnapshot func([]model.Item)
	onError    func(error)
}

type Store struct {
	mu       sync.Mutex
	places   map[string]model.Place
	listas   map[string]map[string]model.Item // placeID → itemID → item
	perfiles map[string]string                // uid → placeID
	cuentas  map[string]cuenta                // email → cuenta
	subs     map[string]map[int]listaSub      // placeID → subID → callbacks
	nextSub  int

	auth store.AuthHub

	// BatchLimit bounds BulkUpsert; zero means defaultBatchLimit.
	BatchLimit int

	// WriteErr, when set, makes every write operation fail with a WriteError
	// wrapping it. Test hook for failure paths.
	WriteErr error
}

func New() *Store {
	return &Store{
		places:   make(map[string]model.Place),
		listas:   make(map[string]map[string]model.Item),
		perfiles: make(map[string]string),
		cuentas:  make(map[string]cuenta),
		subs:     make(map[string]map[int]listaSub),
	}
}

var _ store.Client = (*Store)(nil)

// ── Provisioning helpers (outside the Client contract) ───────────────────────
// Places, perfiles and cuentas are provisioned externally in production; these
// seed them for tests and the seeduser tool.

func (s *Store) CrearPlace(p model.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[p.ID] = p
}

func (s *Store) CrearPerfil(uid, placeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perfiles[uid] = placeID
}

func (s *Store) CrearCuenta(email, password, uid string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cuentas[email] = cuenta{uid: uid, hash: string(hash)}
	return nil
}

// Item returns the stored item and whether it exists. Test accessor.
func (s *Store) Item(placeID, itemID string) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.listas[placeID][itemID]
	return it, ok
}

// Items returns the stored collection ordered by codigo. Test accessor.
func (s *Store) Items(placeID string) []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(placeID)
}

// ── Lista ────────────────────────────────────────────────────────────────────

func (s *Store) SubscribeLista(_ context.Context, placeID string, onSnapshot func([]model.Item), onError func(error)) (store.Unsubscribe, error) {
	s.mu.Lock()
	if s.subs[placeID] == nil {
		s.subs[placeID] = make(map[int]listaSub)
	}
	id := s.nextSub
	s.nextSub++
	s.subs[placeID][id] = listaSub{onSnapshot: onSnapshot, onError: onError}
	snap := s.snapshotLocked(placeID)
	s.mu.Unlock()

	onSnapshot(snap)

	return func() {
		s.mu.Lock()
		delete(s.subs[placeID], id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) snapshotLocked(placeID string) []model.Item {
	items := make([]model.Item, 0, len(s.listas[placeID]))
	for _, it := range s.listas[placeID] {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Codigo < items[j].Codigo })
	return items
}

// notify fans the current snapshot out to subscribers. Called without the
// lock held so that callbacks may safely re-enter the store.
func (s *Store) notify(placeID string) {
	s.mu.Lock()
	snap := s.snapshotLocked(placeID)
	subs := make([]listaSub, 0, len(s.subs[placeID]))
	for _, sub := range s.subs[placeID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.onSnapshot(snap)
	}
}

func (s *Store) FindPlace(_ context.Context, placeID string) (*model.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.places[placeID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "place", ID: placeID}
	}
	return &p, nil
}

func (s *Store) UpdateCabecera(_ context.Context, placeID string, cab model.Cabecera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return &store.WriteError{Op: "update cabecera", Err: s.WriteErr}
	}
	p, ok := s.places[placeID]
	if !ok {
		return &store.WriteError{Op: "update cabecera", Err: &store.NotFoundError{Kind: "place", ID: placeID}}
	}
	p.Nombre = cab.Nombre
	p.Telefono = cab.Telefono
	p.Direccion = cab.Direccion
	p.Poblacion = cab.Poblacion
	s.places[placeID] = p
	return nil
}

func (s *Store) UpsertItem(_ context.Context, placeID, itemID string, doc model.ItemDoc) error {
	s.mu.Lock()
	if s.WriteErr != nil {
		s.mu.Unlock()
		return &store.WriteError{Op: "upsert item", Err: s.WriteErr}
	}
	s.upsertLocked(placeID, itemID, doc)
	s.mu.Unlock()

	s.notify(placeID)
	return nil
}

func (s *Store) upsertLocked(placeID, itemID string, doc model.ItemDoc) {
	if s.listas[placeID] == nil {
		s.listas[placeID] = make(map[string]model.Item)
	}
	it := s.listas[placeID][itemID] // zero value when creating
	it.ID = itemID
	s.listas[placeID][itemID] = doc.Aplicar(it)
}

func (s *Store) DeleteItem(_ context.Context, placeID, itemID string) error {
	s.mu.Lock()
	if s.WriteErr != nil {
		s.mu.Unlock()
		return &store.WriteError{Op: "delete item", Err: s.WriteErr}
	}
	delete(s.listas[placeID], itemID)
	s.mu.Unlock()

	s.notify(placeID)
	return nil
}

func (s *Store) BulkUpsert(_ context.Context, placeID string, entries []store.BatchEntry) error {
	limit := s.BatchLimit
	if limit == 0 {
		limit = defaultBatchLimit
	}

	s.mu.Lock()
	if s.WriteErr != nil {
		s.mu.Unlock()
		return &store.WriteError{Op: "bulk upsert", Err: s.WriteErr}
	}
	if len(entries) > limit {
		s.mu.Unlock()
		return &store.WriteError{Op: "bulk upsert", Err: store.ErrBatchTooLarge}
	}
	// validate the whole batch before touching state: all-or-nothing
	for _, e := range entries {
		if e.ItemID == "" {
			s.mu.Unlock()
			return &store.WriteError{Op: "bulk upsert", Err: &store.NotFoundError{Kind: "item", ID: "(sin id)"}}
		}
	}
	for _, e := range entries {
		s.upsertLocked(placeID, e.ItemID, e.Doc)
	}
	s.mu.Unlock()

	s.notify(placeID)
	return nil
}

// ── Perfil / auth ────────────────────────────────────────────────────────────

func (s *Store) FindPerfil(_ context.Context, userID string) (*model.Perfil, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	placeID, ok := s.perfiles[userID]
	if !ok {
		return nil, &store.NotFoundError{Kind: "perfil", ID: userID}
	}
	return &model.Perfil{UserID: userID, PlaceID: placeID}, nil
}

func (s *Store) SignIn(_ context.Context, email, password string) (*model.Identity, error) {
	s.mu.Lock()
	c, ok := s.cuentas[email]
	s.mu.Unlock()
	if !ok {
		return nil, &store.AuthError{Msg: "credenciales invalidas"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.hash), []byte(password)); err != nil {
		return nil, &store.AuthError{Msg: "credenciales invalidas"}
	}
	id := &model.Identity{UID: c.uid, Email: email}
	s.auth.Set(id)
	return id, nil
}

func (s *Store) SignOut(_ context.Context) error {
	s.auth.Set(nil)
	return nil
}

func (s *Store) OnAuthChange(fn func(*model.Identity)) store.Unsubscribe {
	return s.auth.Subscribe(fn)
}

func (s *Store) Ping(_ context.Context) error { return nil }
