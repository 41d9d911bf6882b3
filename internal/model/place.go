package model

// Place is the venue whose lista is managed. Provisioned externally; this
// system only reads it and rewrites the four header fields.
type Place struct {
	ID        string `json:"id"`
	Nombre    string `json:"nombre"`
	Telefono  string `json:"telefono"`
	Direccion string `json:"direccion"`
	Poblacion string `json:"poblacion"`
}

// Cabecera is the "save header" payload: all four fields rewritten as one
// atomic update, empty strings included verbatim.
type Cabecera struct {
	Nombre    string `json:"nombre"`
	Telefono  string `json:"telefono"`
	Direccion string `json:"direccion"`
	Poblacion string `json:"poblacion"`
}
