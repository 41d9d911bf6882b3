// cmd/seeduser/main.go — Crea/actualiza el usuario y place de demo en el
// backend configurado (STORE_BACKEND=redis|postgres).
// Uso: go run ./cmd/seeduser
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"milista/internal/config"
	"milista/internal/infra"
	"milista/internal/model"
	"milista/internal/store"
	"milista/internal/store/pgstore"
	"milista/internal/store/redisstore"
)

const (
	demoEmail    = "demo@milista.app"
	demoPassword = "1234"
	demoUID      = "uid-demo"
	demoPlaceID  = "V1"
)

// seeder is the provisioning surface both network backends share.
type seeder interface {
	store.Client
	CrearPlace(ctx context.Context, p model.Place) error
	CrearPerfil(ctx context.Context, uid, placeID string) error
	CrearCuenta(ctx context.Context, email, password, uid string) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	var sd seeder
	switch cfg.StoreBackend {
	case "redis":
		rdb, err := infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connect error: %v", err)
		}
		sd = redisstore.New(rdb, cfg.BulkBatchLimit)
	case "postgres":
		db, err := infra.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		pg, err := pgstore.New(db, cfg.BulkBatchLimit, time.Duration(cfg.PollIntervalSeconds)*time.Second)
		if err != nil {
			log.Fatalf("migration error: %v", err)
		}
		sd = pg
	default:
		log.Fatalf("STORE_BACKEND %q no admite seed (usa redis o postgres)", cfg.StoreBackend)
	}

	ctx := context.Background()

	if err := sd.CrearPlace(ctx, model.Place{
		ID:        demoPlaceID,
		Nombre:    "Bar Demo",
		Telefono:  "600000000",
		Direccion: "Calle Mayor 1",
		Poblacion: "Madrid",
	}); err != nil {
		log.Fatalf("place error: %v", err)
	}
	if err := sd.CrearCuenta(ctx, demoEmail, demoPassword, demoUID); err != nil {
		log.Fatalf("cuenta error: %v", err)
	}
	if err := sd.CrearPerfil(ctx, demoUID, demoPlaceID); err != nil {
		log.Fatalf("perfil error: %v", err)
	}

	precio := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	entries := []store.BatchEntry{
		{ItemID: "V10000", Doc: docItem("V10000", model.TipoSeccion, "Bebidas", nil)},
		{ItemID: "V10001", Doc: docItem("V10001", model.TipoElemento, "Caña", precio("1.50"))},
		{ItemID: "V10002", Doc: docItem("V10002", model.TipoElemento, "Vino tinto", precio("2.20"))},
	}
	if err := sd.BulkUpsert(ctx, demoPlaceID, entries); err != nil {
		log.Fatalf("items error: %v", err)
	}

	fmt.Printf("✅ Usuario '%s' (password '%s') con place '%s' creado/actualizado\n",
		demoEmail, demoPassword, demoPlaceID)
}

func docItem(codigo string, tipo model.Tipo, nombre string, precio *decimal.Decimal) model.ItemDoc {
	doc := model.ItemDoc{
		Codigo:    &codigo,
		Tipo:      &tipo,
		Nombre:    &nombre,
		Precio:    precio,
		PrecioSet: true,
	}
	return doc.Normalizar()
}
