// Package pgstore backs store.Client with PostgreSQL via GORM. Merge-writes
// become upserts that only assign the doc's present columns; BulkUpsert runs
// inside one transaction, which gives the all-or-nothing batch guarantee
// natively. Realtime delivery stands in as a process-local change bus (own
// writes notify immediately) plus a poll ticker per subscription to observe
// writes from other processes.
package pgstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"milista/internal/model"
	"milista/internal/store"
)

const (
	defaultBatchLimit   = 500
	defaultPollInterval = 5 * time.Second
)

// ── Rows ─────────────────────────────────────────────────────────────────────

type placeRow struct {
	ID        string `gorm:"primaryKey"`
	Nombre    string
	Telefono  string
	Direccion string
	Poblacion string
}

func (placeRow) TableName() string { return "places" }

type itemRow struct {
	PlaceID string `gorm:"primaryKey"`
	ID      string `gorm:"primaryKey"`
	Codigo  string `gorm:"index"`
	Tipo    string
	Nombre  string
	Precio  *decimal.Decimal `gorm:"type:decimal(10,2)"`
}

func (itemRow) TableName() string { return "lista_items" }

type perfilRow struct {
	UserID  string `gorm:"primaryKey"`
	PlaceID string `gorm:"not null"`
}

func (perfilRow) TableName() string { return "perfiles" }

type cuentaRow struct {
	Email        string `gorm:"primaryKey"`
	UID          string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
}

func (cuentaRow) TableName() string { return "cuentas" }

// ── Store ────────────────────────────────────────────────────────────────────

type sub struct {
	onSnapshot func([]model.Item)
	onError    func(error)
}

type Store struct {
	db           *gorm.DB
	batchLimit   int
	pollInterval time.Duration
	auth         store.AuthHub

	mu      sync.Mutex
	subs    map[string]map[int]sub // placeID → subID → callbacks
	nextSub int
}

func New(db *gorm.DB, batchLimit int, pollInterval time.Duration) (*Store, error) {
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if err := db.AutoMigrate(&placeRow{}, &itemRow{}, &perfilRow{}, &cuentaRow{}); err != nil {
		return nil, err
	}
	return &Store{
		db:           db,
		batchLimit:   batchLimit,
		pollInterval: pollInterval,
		subs:         make(map[string]map[int]sub),
	}, nil
}

var _ store.Client = (*Store)(nil)

// ── Lista ────────────────────────────────────────────────────────────────────

func (s *Store) SubscribeLista(ctx context.Context, placeID string, onSnapshot func([]model.Item), onError func(error)) (store.Unsubscribe, error) {
	snap, err := s.leerLista(ctx, placeID)
	if err != nil {
		return nil, &store.ReadError{Op: "subscribe lista", Err: err}
	}

	s.mu.Lock()
	if s.subs[placeID] == nil {
		s.subs[placeID] = make(map[int]sub)
	}
	id := s.nextSub
	s.nextSub++
	s.subs[placeID][id] = sub{onSnapshot: onSnapshot, onError: onError}
	s.mu.Unlock()

	onSnapshot(snap)

	// Poll for foreign writers; own writes notify through the local bus.
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap, err := s.leerLista(context.Background(), placeID)
				if err != nil {
					onError(&store.ReadError{Op: "poll lista", Err: err})
					continue
				}
				onSnapshot(snap)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			s.mu.Lock()
			delete(s.subs[placeID], id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *Store) leerLista(ctx context.Context, placeID string) ([]model.Item, error) {
	var rows []itemRow
	if err := s.db.WithContext(ctx).
		Where("place_id = ?", placeID).
		Order("codigo ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]model.Item, len(rows))
	for i, r := range rows {
		items[i] = model.Item{
			ID:     r.ID,
			Codigo: r.Codigo,
			Tipo:   model.Tipo(r.Tipo),
			Nombre: r.Nombre,
			Precio: r.Precio,
		}
	}
	return items, nil
}

// notificar re-reads the collection and fans it out to local subscribers.
func (s *Store) notificar(placeID string) {
	snap, err := s.leerLista(context.Background(), placeID)

	s.mu.Lock()
	subs := make([]sub, 0, len(s.subs[placeID]))
	for _, sb := range s.subs[placeID] {
		subs = append(subs, sb)
	}
	s.mu.Unlock()

	for _, sb := range subs {
		if err != nil {
			sb.onError(&store.ReadError{Op: "refresh lista", Err: err})
			continue
		}
		sb.onSnapshot(snap)
	}
}

func (s *Store) FindPlace(ctx context.Context, placeID string) (*model.Place, error) {
	var row placeRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", placeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &store.NotFoundError{Kind: "place", ID: placeID}
	}
	if err != nil {
		return nil, &store.ReadError{Op: "find place", Err: err}
	}
	return &model.Place{
		ID:        row.ID,
		Nombre:    row.Nombre,
		Telefono:  row.Telefono,
		Direccion: row.Direccion,
		Poblacion: row.Poblacion,
	}, nil
}

func (s *Store) UpdateCabecera(ctx context.Context, placeID string, cab model.Cabecera) error {
	// map-based Updates so empty strings are written verbatim
	res := s.db.WithContext(ctx).Model(&placeRow{}).Where("id = ?", placeID).
		Updates(map[string]interface{}{
			"nombre":    cab.Nombre,
			"telefono":  cab.Telefono,
			"direccion": cab.Direccion,
			"poblacion": cab.Poblacion,
		})
	if res.Error != nil {
		return &store.WriteError{Op: "update cabecera", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &store.WriteError{Op: "update cabecera", Err: &store.NotFoundError{Kind: "place", ID: placeID}}
	}
	return nil
}

func (s *Store) UpsertItem(ctx context.Context, placeID, itemID string, doc model.ItemDoc) error {
	if err := upsertTx(s.db.WithContext(ctx), placeID, itemID, doc); err != nil {
		return &store.WriteError{Op: "upsert item", Err: err}
	}
	s.notificar(placeID)
	return nil
}

// upsertTx merge-writes one doc: insert when missing, otherwise assign only
// the doc's present columns.
func upsertTx(tx *gorm.DB, placeID, itemID string, doc model.ItemDoc) error {
	cols := make(map[string]interface{}, 4)
	row := itemRow{PlaceID: placeID, ID: itemID}
	if doc.Codigo != nil {
		cols["codigo"] = *doc.Codigo
		row.Codigo = *doc.Codigo
	}
	if doc.Tipo != nil {
		cols["tipo"] = string(*doc.Tipo)
		row.Tipo = string(*doc.Tipo)
	}
	if doc.Nombre != nil {
		cols["nombre"] = *doc.Nombre
		row.Nombre = *doc.Nombre
	}
	if doc.PrecioSet {
		cols["precio"] = doc.Precio
		row.Precio = doc.Precio
	}
	if len(cols) == 0 {
		cols["id"] = itemID // degenerate doc: still create the row
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "place_id"}, {Name: "id"}},
		DoUpdates: clause.Assignments(cols),
	}).Create(&row).Error
}

func (s *Store) DeleteItem(ctx context.Context, placeID, itemID string) error {
	err := s.db.WithContext(ctx).
		Where("place_id = ? AND id = ?", placeID, itemID).
		Delete(&itemRow{}).Error
	if err != nil {
		return &store.WriteError{Op: "delete item", Err: err}
	}
	s.notificar(placeID)
	return nil
}

func (s *Store) BulkUpsert(ctx context.Context, placeID string, entries []store.BatchEntry) error {
	if len(entries) > s.batchLimit {
		return &store.WriteError{Op: "bulk upsert", Err: store.ErrBatchTooLarge}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if e.ItemID == "" {
				return errors.New("entrada sin id")
			}
			if err := upsertTx(tx, placeID, e.ItemID, e.Doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &store.WriteError{Op: "bulk upsert", Err: err}
	}
	s.notificar(placeID)
	return nil
}

// ── Perfil / auth ────────────────────────────────────────────────────────────

func (s *Store) FindPerfil(ctx context.Context, userID string) (*model.Perfil, error) {
	var row perfilRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &store.NotFoundError{Kind: "perfil", ID: userID}
	}
	if err != nil {
		return nil, &store.ReadError{Op: "find perfil", Err: err}
	}
	return &model.Perfil{UserID: row.UserID, PlaceID: row.PlaceID}, nil
}

func (s *Store) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	var row cuentaRow
	err := s.db.WithContext(ctx).First(&row, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &store.AuthError{Msg: "credenciales invalidas"}
	}
	if err != nil {
		return nil, &store.ReadError{Op: "sign in", Err: err}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return nil, &store.AuthError{Msg: "credenciales invalidas"}
	}
	id := &model.Identity{UID: row.UID, Email: email}
	s.auth.Set(id)
	return id, nil
}

func (s *Store) SignOut(context.Context) error {
	s.auth.Set(nil)
	return nil
}

func (s *Store) OnAuthChange(fn func(*model.Identity)) store.Unsubscribe {
	return s.auth.Subscribe(fn)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ── Provisioning helpers for cmd/seeduser ────────────────────────────────────

func (s *Store) CrearPlace(ctx context.Context, p model.Place) error {
	row := placeRow{ID: p.ID, Nombre: p.Nombre, Telefono: p.Telefono, Direccion: p.Direccion, Poblacion: p.Poblacion}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *Store) CrearPerfil(ctx context.Context, uid, placeID string) error {
	row := perfilRow{UserID: uid, PlaceID: placeID}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *Store) CrearCuenta(ctx context.Context, email, password, uid string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	row := cuentaRow{Email: email, UID: uid, PasswordHash: string(hash)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		UpdateAll: true,
	}).Create(&row).Error
}
