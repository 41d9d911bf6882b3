package codigo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"milista/internal/model"
)

func conCodigos(codigos ...string) []model.Item {
	items := make([]model.Item, len(codigos))
	for i, c := range codigos {
		items[i] = model.Item{ID: c, Codigo: c, Tipo: model.TipoElemento}
	}
	return items
}

func TestNext_ListaVacia(t *testing.T) {
	assert.Equal(t, "V10001", Next(nil, "V1"))
}

func TestNext_TomaElMaximo(t *testing.T) {
	items := conCodigos("V10001", "V10099")
	assert.Equal(t, "V10100", Next(items, "V1"))
}

func TestNext_PaddingMinimoCuatroDigitos(t *testing.T) {
	items := conCodigos("V10009")
	assert.Equal(t, "V10010", Next(items, "V1"))
}

func TestNext_NoTruncaConCincoDigitos(t *testing.T) {
	items := conCodigos("V199999")
	assert.Equal(t, "V1100000", Next(items, "V1"))
}

func TestNext_IgnoraCodigosDeOtroPlace(t *testing.T) {
	items := conCodigos("V20042", "V10003")
	assert.Equal(t, "V10004", Next(items, "V1"))
}

func TestNext_SufijoNoNumericoCuentaComoCero(t *testing.T) {
	items := conCodigos("V1abc", "V1")
	assert.Equal(t, "V10001", Next(items, "V1"))
}

func TestNext_NoReutilizaElMaximoActual(t *testing.T) {
	items := conCodigos("V10005")
	// gaps below the max are never reissued by the generator
	items = append(items, conCodigos("V10002")...)
	assert.Equal(t, "V10006", Next(items, "V1"))
}
