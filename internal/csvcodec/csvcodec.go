// Package csvcodec implements the lista CSV wire format.
//
// The format is intentionally naive for compatibility with files produced and
// consumed by the existing tooling: every exported value is double-quoted
// unconditionally, fields are split on bare commas, and embedded quotes or
// commas inside values are NOT escaped. encoding/csv cannot reproduce this
// (it escapes on write and rejects stray quotes on read), so the codec is
// hand-rolled. Known limitation, not a bug to silently fix.
package csvcodec

import (
	"strings"

	"milista/internal/model"
)

// Campo is one named value of a fila.
type Campo struct {
	Nombre string
	Valor  string
}

// Fila is one CSV row as ordered field/value pairs. Field order matters: the
// first fila's order defines the export header.
type Fila []Campo

// Valor returns the value of the named field, or "" when absent.
func (f Fila) Valor(nombre string) (string, bool) {
	for _, c := range f {
		if c.Nombre == nombre {
			return c.Valor, true
		}
	}
	return "", false
}

// Registro is one parsed CSV row: field name → raw string value. Fields not
// present in the line (short rows) are simply absent from the map.
type Registro map[string]string

// Serialize renders filas as CSV text. Empty input produces empty output.
// The header row is the first fila's field names in order; data rows render
// every header field double-quoted, with fields absent on a later fila
// rendered as an empty quoted value.
func Serialize(filas []Fila) string {
	if len(filas) == 0 {
		return ""
	}

	headers := make([]string, len(filas[0]))
	for i, c := range filas[0] {
		headers[i] = c.Nombre
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, ","))
	for _, fila := range filas {
		b.WriteByte('\n')
		for i, h := range headers {
			if i > 0 {
				b.WriteByte(',')
			}
			v, _ := fila.Valor(h)
			b.WriteByte('"')
			b.WriteString(v)
			b.WriteByte('"')
		}
	}
	return b.String()
}

// Parse splits CSV text into registros. Blank lines are dropped; with fewer
// than two non-blank lines (a header alone, or nothing) it yields no
// registros. Quotes and surrounding whitespace are stripped from headers and
// values; rows are zipped positionally against the header with no
// column-count validation. A registro without an id takes its codigo as id.
func Parse(texto string) []Registro {
	var lineas []string
	for _, l := range strings.Split(texto, "\n") {
		if strings.TrimSpace(l) != "" {
			lineas = append(lineas, l)
		}
	}
	if len(lineas) < 2 {
		return nil
	}

	headers := splitLimpio(lineas[0])
	regs := make([]Registro, 0, len(lineas)-1)
	for _, linea := range lineas[1:] {
		valores := splitLimpio(linea)
		reg := make(Registro, len(headers))
		for i, h := range headers {
			if i < len(valores) {
				reg[h] = valores[i]
			}
		}
		if _, ok := reg["id"]; !ok {
			if c, ok := reg["codigo"]; ok {
				reg["id"] = c
			}
		} else if reg["id"] == "" {
			reg["id"] = reg["codigo"]
		}
		regs = append(regs, reg)
	}
	return regs
}

func splitLimpio(linea string) []string {
	partes := strings.Split(linea, ",")
	for i, p := range partes {
		partes[i] = strings.TrimSpace(strings.ReplaceAll(p, `"`, ""))
	}
	return partes
}

// FilaDeItem flattens an item into the canonical export order. A nil precio
// renders as an empty value, which Parse reads back as null.
func FilaDeItem(it model.Item) Fila {
	precio := ""
	if it.Precio != nil {
		precio = it.Precio.String()
	}
	return Fila{
		{Nombre: "id", Valor: it.ID},
		{Nombre: "codigo", Valor: it.Codigo},
		{Nombre: "tipo", Valor: string(it.Tipo)},
		{Nombre: "nombre", Valor: it.Nombre},
		{Nombre: "precio", Valor: precio},
	}
}
