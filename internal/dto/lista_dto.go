package dto

import (
	"github.com/shopspring/decimal"

	"milista/internal/model"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CabeceraRequest rewrites the four header fields; unset fields save as "".
type CabeceraRequest struct {
	Nombre    string `json:"nombre"`
	Telefono  string `json:"telefono"`
	Direccion string `json:"direccion"`
	Poblacion string `json:"poblacion"`
}

// BorradorRequest is a local row edit: only the fields present in the JSON
// body touch the draft. PrecioNulo clears the price explicitly, since a null
// precio and an omitted precio are different edits.
type BorradorRequest struct {
	Codigo     *string          `json:"codigo"`
	Tipo       *string          `json:"tipo"   validate:"omitempty,oneof=seccion elemento"`
	Nombre     *string          `json:"nombre"`
	Precio     *decimal.Decimal `json:"precio"`
	PrecioNulo bool             `json:"precio_nulo"`
}

// Doc converts the request into a merge payload for the working copy.
func (r BorradorRequest) Doc() model.ItemDoc {
	doc := model.ItemDoc{
		Codigo: r.Codigo,
		Nombre: r.Nombre,
	}
	if r.Tipo != nil {
		t := model.Tipo(*r.Tipo)
		doc.Tipo = &t
	}
	if r.PrecioNulo {
		doc.PrecioSet = true
	} else if r.Precio != nil {
		doc.Precio = r.Precio
		doc.PrecioSet = true
	}
	return doc
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type PlaceResponse struct {
	ID        string `json:"id"`
	Nombre    string `json:"nombre"`
	Telefono  string `json:"telefono"`
	Direccion string `json:"direccion"`
	Poblacion string `json:"poblacion"`
}

type ItemResponse struct {
	ID     string           `json:"id"`
	Codigo string           `json:"codigo"`
	Tipo   string           `json:"tipo"`
	Nombre string           `json:"nombre"`
	Precio *decimal.Decimal `json:"precio"`
}

type ListaResponse struct {
	Place  *PlaceResponse `json:"place"`
	Items  []ItemResponse `json:"items"`
	Status string         `json:"status"`
}

type ImportResponse struct {
	Importados int    `json:"importados"`
	Status     string `json:"status"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// ItemResponseDe flattens a model item for the API.
func ItemResponseDe(it model.Item) ItemResponse {
	return ItemResponse{
		ID:     it.ID,
		Codigo: it.Codigo,
		Tipo:   string(it.Tipo),
		Nombre: it.Nombre,
		Precio: it.Precio,
	}
}
