package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tipo distingue filas de cabecera de sección de líneas con precio.
type Tipo string

const (
	TipoSeccion  Tipo = "seccion"
	TipoElemento Tipo = "elemento"
)

// Item is one row of a place's lista. ID doubles as the storage key and is
// fixed at creation time; Codigo carries the per-place sequential code that
// also defines display order. Precio is nil for secciones and for elementos
// without an assigned price.
type Item struct {
	ID     string           `json:"id"`
	Codigo string           `json:"codigo"`
	Tipo   Tipo             `json:"tipo"`
	Nombre string           `json:"nombre"`
	Precio *decimal.Decimal `json:"precio"`
}

// Normalizar enforces the seccion ⇒ null precio rule. Every write path must
// go through this (or ItemDoc.Normalizar) before reaching the store.
func (it Item) Normalizar() Item {
	if it.Tipo == TipoSeccion {
		it.Precio = nil
	}
	return it
}

// ItemDoc is a merge-write payload: nil pointer fields are absent and left
// untouched on the stored document. Precio admits three states — absent
// (PrecioSet false), null (PrecioSet true, Precio nil) and a value — because
// clearing a price is a real write, not an omission.
type ItemDoc struct {
	Codigo    *string
	Tipo      *Tipo
	Nombre    *string
	Precio    *decimal.Decimal
	PrecioSet bool
}

// Normalizar forces a null precio whenever the doc declares tipo seccion.
func (d ItemDoc) Normalizar() ItemDoc {
	if d.Tipo != nil && *d.Tipo == TipoSeccion {
		d.Precio = nil
		d.PrecioSet = true
	}
	return d
}

// DocDeItem builds the full write payload for a row save: exactly codigo,
// tipo, nombre and precio. The ID never travels in the doc — it is the key.
func DocDeItem(it Item) ItemDoc {
	it = it.Normalizar()
	return ItemDoc{
		Codigo:    &it.Codigo,
		Tipo:      &it.Tipo,
		Nombre:    &it.Nombre,
		Precio:    it.Precio,
		PrecioSet: true,
	}
}

// DocDeRegistro converts a parsed CSV registro into a merge-write payload.
// Only the columns present in the file become fields of the doc. An empty
// precio column writes null; a non-numeric precio aborts the conversion so
// that the whole import fails instead of silently storing 0.
func DocDeRegistro(reg map[string]string) (ItemDoc, error) {
	var doc ItemDoc
	if v, ok := reg["codigo"]; ok {
		doc.Codigo = &v
	}
	if v, ok := reg["tipo"]; ok {
		t := Tipo(v)
		doc.Tipo = &t
	}
	if v, ok := reg["nombre"]; ok {
		doc.Nombre = &v
	}
	if v, ok := reg["precio"]; ok {
		doc.PrecioSet = true
		if v != "" {
			p, err := decimal.NewFromString(v)
			if err != nil {
				return ItemDoc{}, fmt.Errorf("precio invalido %q: %w", v, err)
			}
			doc.Precio = &p
		}
	}
	return doc, nil
}

// Aplicar merges the doc's present fields into an in-memory item.
func (d ItemDoc) Aplicar(it Item) Item {
	if d.Codigo != nil {
		it.Codigo = *d.Codigo
	}
	if d.Tipo != nil {
		it.Tipo = *d.Tipo
	}
	if d.Nombre != nil {
		it.Nombre = *d.Nombre
	}
	if d.PrecioSet {
		it.Precio = d.Precio
	}
	return it
}
