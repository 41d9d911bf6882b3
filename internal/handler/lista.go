package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"milista/internal/apierror"
	"milista/internal/dto"
	"milista/internal/middleware"
	"milista/internal/model"
	"milista/internal/service"

	"github.com/gin-gonic/gin"
)

// maxCSVBytes caps uploads; a priced list CSV is small by nature.
const maxCSVBytes = 2 << 20

// ListaHandler serves the per-place list: header, rows, drafts, CSV and the
// realtime stream. Every endpoint resolves the caller's lista through the
// session service, so a token whose session has no loaded lista gets a 409
// with the session status instead of a silent empty list.
type ListaHandler struct {
	sesiones service.SessionService
}

func NewListaHandler(sesiones service.SessionService) *ListaHandler {
	return &ListaHandler{sesiones: sesiones}
}

// lista resolves the caller's controller or writes the error response.
func (h *ListaHandler) lista(c *gin.Context) (*service.Lista, bool) {
	claims := middleware.GetClaims(c)
	lista, err := h.sesiones.ListaDe(claims.UID)
	if err != nil {
		if ses, ok := h.sesiones.Sesion(claims.UID); ok && ses.Status != "" {
			c.JSON(http.StatusConflict, apierror.New(ses.Status))
			return nil, false
		}
		c.JSON(http.StatusConflict, apierror.New("Sesion sin lista cargada"))
		return nil, false
	}
	return lista, true
}

func listaResponse(l *service.Lista) dto.ListaResponse {
	items := l.Items()
	resp := dto.ListaResponse{
		Items:  make([]dto.ItemResponse, len(items)),
		Status: l.Status(),
	}
	for i, it := range items {
		resp.Items[i] = dto.ItemResponseDe(it)
	}
	if place := l.Place(); place != nil {
		resp.Place = &dto.PlaceResponse{
			ID:        place.ID,
			Nombre:    place.Nombre,
			Telefono:  place.Telefono,
			Direccion: place.Direccion,
			Poblacion: place.Poblacion,
		}
	}
	return resp
}

// Get returns the current working copy: header, rows and the last status.
func (h *ListaHandler) Get(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, listaResponse(lista))
}

// Status returns only the last operation's outcome message.
func (h *ListaHandler) Status(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: lista.Status()})
}

// GuardarCabecera rewrites the four header fields verbatim, empty ones
// included.
func (h *ListaHandler) GuardarCabecera(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}
	var req dto.CabeceraRequest
	if !bindAndValidate(c, &req) {
		return
	}
	cab := model.Cabecera{
		Nombre:    req.Nombre,
		Telefono:  req.Telefono,
		Direccion: req.Direccion,
		Poblacion: req.Poblacion,
	}
	if err := lista.GuardarCabecera(c.Request.Context(), cab); err != nil {
		c.JSON(http.StatusBadGateway, apierror.New(lista.Status()))
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: lista.Status()})
}

// Anadir creates a new row with the next sequential code.
func (h *ListaHandler) Anadir(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}
	item, err := lista.Anadir(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, apierror.New(lista.Status()))
		return
	}
	c.JSON(http.StatusCreated, dto.ItemResponseDe(item))
}

// Guardar persists one row. An optional body is applied as a draft edit
// first, so a client can edit-and-save in a single call.
func (h *ListaHandler) Guardar(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}
	itemID := c.Param("id")

	var req dto.BorradorRequest
	presente, ok := bindOptional(c, &req)
	if !ok {
		return
	}
	if presente {
		if err := lista.EditarBorrador(itemID, req.Doc()); err != nil {
			c.JSON(http.StatusNotFound, apierror.New("Item no encontrado"))
			return
		}
	}

	if err := lista.GuardarItem(c.Request.Context(), itemID); err != nil {
		if errors.Is(err, service.ErrItemNoEncontrado) {
			c.JSON(http.StatusNotFound, apierror.New("Item no encontrado"))
			return
		}
		c.JSON(http.StatusBadGateway, apierror.New(lista.Status()))
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: lista.Status()})
}

// EditarBorrador applies a merge edit to the working copy only. Nothing hits
// the store until Guardar.
func (h *ListaHandler) EditarBorrador(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}
	var req dto.BorradorRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := lista.EditarBorrador(c.Param("id"), req.Doc()); err != nil {
		c.JSON(http.StatusNotFound, apierror.New("Item no encontrado"))
		return
	}
	c.JSON(http.StatusOK, listaResponse(lista))
}

// Borrar deletes a row. Requires ?confirmar=true; without it the store is
// untouched and the client gets a 409 so it can re-ask the user.
func (h *ListaHandler) Borrar(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}
	confirmado := c.Query("confirmar") == "true"
	if err := lista.Borrar(c.Request.Context(), c.Param("id"), confirmado); err != nil {
		if errors.Is(err, service.ErrConfirmacionRequerida) {
			c.JSON(http.StatusConflict, apierror.New("Confirmacion requerida: repite con ?confirmar=true"))
			return
		}
		c.JSON(http.StatusBadGateway, apierror.New(lista.Status()))
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: lista.Status()})
}

// ImportarCSV merges an uploaded CSV into the list. The whole file is
// validated before anything is written; a bad row aborts the import.
func (h *ListaHandler) ImportarCSV(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Falta el fichero 'file'"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCSVBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Error leyendo el fichero"))
		return
	}
	if len(data) > maxCSVBytes {
		c.JSON(http.StatusRequestEntityTooLarge, apierror.New("Fichero demasiado grande"))
		return
	}

	n, err := lista.ImportarCSV(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.New(lista.Status()))
		return
	}
	c.JSON(http.StatusOK, dto.ImportResponse{Importados: n, Status: lista.Status()})
}

// ExportarCSV downloads the displayed list, drafts included, as lista.csv.
func (h *ListaHandler) ExportarCSV(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}
	nombre, data := lista.ExportarCSV()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", nombre))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// Stream pushes snapshots over SSE: one event with the current rows at
// connect, then one per change until the client disconnects or the lista
// stops. The server's write timeout cycles the connection every 30s; the
// first event on reconnect is always the full current state, so no change
// is lost across a cycle.
func (h *ListaHandler) Stream(c *gin.Context) {
	lista, ok := h.lista(c)
	if !ok {
		return
	}

	ch, cancel := lista.Stream()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	enviar := func(items []model.Item) bool {
		out := make([]dto.ItemResponse, len(items))
		for i, it := range items {
			out[i] = dto.ItemResponseDe(it)
		}
		c.SSEvent("lista", out)
		return true
	}
	enviar(lista.Items())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case items, open := <-ch:
			if !open {
				return false
			}
			return enviar(items)
		case <-c.Request.Context().Done():
			return false
		}
	})
}
