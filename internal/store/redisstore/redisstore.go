// Package redisstore backs store.Client with Redis: one hash per document,
// a set index per lista, and pub/sub for realtime snapshot delivery. Every
// write publishes on the place's channel; each subscriber re-reads the full
// ordered collection on every message, so snapshots are always fresh reads,
// never incremental patches.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"milista/internal/model"
	"milista/internal/store"
)

const defaultBatchLimit = 500

type Store struct {
	rdb        *redis.Client
	batchLimit int
	auth       store.AuthHub
}

func New(rdb *redis.Client, batchLimit int) *Store {
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	return &Store{rdb: rdb, batchLimit: batchLimit}
}

var _ store.Client = (*Store)(nil)

func clavePlace(placeID string) string { return "place:" + placeID }

func claveItem(placeID, itemID string) string {
	return fmt.Sprintf("place:%s:item:%s", placeID, itemID)
}

func claveIndice(placeID string) string { return "place:" + placeID + ":index" }
func canalLista(placeID string) string  { return "milista:" + placeID }
func clavePerfil(uid string) string     { return "perfil:" + uid }
func claveCuenta(email string) string   { return "cuenta:" + email }

// ── Lista ────────────────────────────────────────────────────────────────────

func (s *Store) SubscribeLista(ctx context.Context, placeID string, onSnapshot func([]model.Item), onError func(error)) (store.Unsubscribe, error) {
	snap, err := s.leerLista(ctx, placeID)
	if err != nil {
		return nil, &store.ReadError{Op: "subscribe lista", Err: err}
	}

	ps := s.rdb.Subscribe(ctx, canalLista(placeID))
	// force the SUBSCRIBE round-trip so writes after this call are never missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &store.ReadError{Op: "subscribe lista", Err: err}
	}

	onSnapshot(snap)

	done := make(chan struct{})
	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				// The subscription outlives the caller's request context;
				// re-reads run on their own, like the pgstore poller.
				snap, err := s.leerLista(context.Background(), placeID)
				if err != nil {
					onError(&store.ReadError{Op: "refresh lista", Err: err})
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
			if err := ps.Close(); err != nil {
				log.Warn().Err(err).Str("place_id", placeID).Msg("cerrando suscripcion redis")
			}
		})
	}, nil
}

func (s *Store) leerLista(ctx context.Context, placeID string) ([]model.Item, error) {
	ids, err := s.rdb.SMembers(ctx, claveIndice(placeID)).Result()
	if err != nil {
		return nil, err
	}
	items := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		campos, err := s.rdb.HGetAll(ctx, claveItem(placeID, id)).Result()
		if err != nil {
			return nil, err
		}
		if len(campos) == 0 {
			continue // index entry without doc: concurrent delete
		}
		it, err := itemDeHash(id, campos)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	ordenarPorCodigo(items)
	return items, nil
}

func itemDeHash(id string, campos map[string]string) (model.Item, error) {
	it := model.Item{
		ID:     id,
		Codigo: campos["codigo"],
		Tipo:   model.Tipo(campos["tipo"]),
		Nombre: campos["nombre"],
	}
	if v, ok := campos["precio"]; ok && v != "" {
		p, err := decimal.NewFromString(v)
		if err != nil {
			return model.Item{}, fmt.Errorf("precio corrupto en item %s: %w", id, err)
		}
		it.Precio = &p
	}
	return it, nil
}

func ordenarPorCodigo(items []model.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Codigo < items[j].Codigo })
}

func (s *Store) FindPlace(ctx context.Context, placeID string) (*model.Place, error) {
	campos, err := s.rdb.HGetAll(ctx, clavePlace(placeID)).Result()
	if err != nil {
		return nil, &store.ReadError{Op: "find place", Err: err}
	}
	if len(campos) == 0 {
		return nil, &store.NotFoundError{Kind: "place", ID: placeID}
	}
	return &model.Place{
		ID:        placeID,
		Nombre:    campos["nombre"],
		Telefono:  campos["telefono"],
		Direccion: campos["direccion"],
		Poblacion: campos["poblacion"],
	}, nil
}

func (s *Store) UpdateCabecera(ctx context.Context, placeID string, cab model.Cabecera) error {
	err := s.rdb.HSet(ctx, clavePlace(placeID),
		"nombre", cab.Nombre,
		"telefono", cab.Telefono,
		"direccion", cab.Direccion,
		"poblacion", cab.Poblacion,
	).Err()
	if err != nil {
		return &store.WriteError{Op: "update cabecera", Err: err}
	}
	return nil
}

func (s *Store) UpsertItem(ctx context.Context, placeID, itemID string, doc model.ItemDoc) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		encolarUpsert(ctx, pipe, placeID, itemID, doc)
		pipe.Publish(ctx, canalLista(placeID), itemID)
		return nil
	})
	if err != nil {
		return &store.WriteError{Op: "upsert item", Err: err}
	}
	return nil
}

// encolarUpsert queues the merge-write commands for one item doc: HSet for
// present fields, HDel for an explicit null precio.
func encolarUpsert(ctx context.Context, pipe redis.Pipeliner, placeID, itemID string, doc model.ItemDoc) {
	clave := claveItem(placeID, itemID)
	pares := make([]interface{}, 0, 8)
	if doc.Codigo != nil {
		pares = append(pares, "codigo", *doc.Codigo)
	}
	if doc.Tipo != nil {
		pares = append(pares, "tipo", string(*doc.Tipo))
	}
	if doc.Nombre != nil {
		pares = append(pares, "nombre", *doc.Nombre)
	}
	if doc.PrecioSet {
		if doc.Precio != nil {
			pares = append(pares, "precio", doc.Precio.String())
		} else {
			pipe.HDel(ctx, clave, "precio")
		}
	}
	if len(pares) > 0 {
		pipe.HSet(ctx, clave, pares...)
	}
	pipe.SAdd(ctx, claveIndice(placeID), itemID)
}

func (s *Store) DeleteItem(ctx context.Context, placeID, itemID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, claveItem(placeID, itemID))
		pipe.SRem(ctx, claveIndice(placeID), itemID)
		pipe.Publish(ctx, canalLista(placeID), itemID)
		return nil
	})
	if err != nil {
		return &store.WriteError{Op: "delete item", Err: err}
	}
	return nil
}

func (s *Store) BulkUpsert(ctx context.Context, placeID string, entries []store.BatchEntry) error {
	if len(entries) > s.batchLimit {
		return &store.WriteError{Op: "bulk upsert", Err: store.ErrBatchTooLarge}
	}
	for _, e := range entries {
		if e.ItemID == "" {
			return &store.WriteError{Op: "bulk upsert", Err: fmt.Errorf("entrada sin id")}
		}
	}
	// MULTI/EXEC: the whole batch is applied atomically, one publish at the end
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			encolarUpsert(ctx, pipe, placeID, e.ItemID, e.Doc)
		}
		pipe.Publish(ctx, canalLista(placeID), "bulk")
		return nil
	})
	if err != nil {
		return &store.WriteError{Op: "bulk upsert", Err: err}
	}
	return nil
}

// ── Perfil / auth ────────────────────────────────────────────────────────────

func (s *Store) FindPerfil(ctx context.Context, userID string) (*model.Perfil, error) {
	placeID, err := s.rdb.HGet(ctx, clavePerfil(userID), "place_id").Result()
	if err == redis.Nil {
		return nil, &store.NotFoundError{Kind: "perfil", ID: userID}
	}
	if err != nil {
		return nil, &store.ReadError{Op: "find perfil", Err: err}
	}
	return &model.Perfil{UserID: userID, PlaceID: placeID}, nil
}

func (s *Store) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	campos, err := s.rdb.HGetAll(ctx, claveCuenta(email)).Result()
	if err != nil {
		return nil, &store.ReadError{Op: "sign in", Err: err}
	}
	hash, ok := campos["password_hash"]
	if !ok {
		return nil, &store.AuthError{Msg: "credenciales invalidas"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, &store.AuthError{Msg: "credenciales invalidas"}
	}
	id := &model.Identity{UID: campos["uid"], Email: email}
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
	return s.rdb.Ping(ctx).Err()
}

// ── Provisioning helpers for cmd/seeduser ────────────────────────────────────

func (s *Store) CrearPlace(ctx context.Context, p model.Place) error {
	return s.rdb.HSet(ctx, clavePlace(p.ID),
		"nombre", p.Nombre, "telefono", p.Telefono,
		"direccion", p.Direccion, "poblacion", p.Poblacion,
	).Err()
}

func (s *Store) CrearPerfil(ctx context.Context, uid, placeID string) error {
	return s.rdb.HSet(ctx, clavePerfil(uid), "place_id", placeID).Err()
}

func (s *Store) CrearCuenta(ctx context.Context, email, password, uid string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, claveCuenta(email), "uid", uid, "password_hash", string(hash)).Err()
}
