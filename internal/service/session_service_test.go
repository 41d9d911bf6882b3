package service

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milista/internal/config"
	"milista/internal/dto"
	"milista/internal/model"
	"milista/internal/store"
	"milista/internal/store/memstore"
)

func nuevaSesionDePrueba(t *testing.T) (*memstore.Store, SessionService) {
	t.Helper()
	st := memstore.New()
	st.CrearPlace(model.Place{ID: "V1", Nombre: "Bar Demo"})
	require.NoError(t, st.CrearCuenta("demo@milista.app", "1234", "uid-demo"))
	st.CrearPerfil("uid-demo", "V1")

	svc := NewSessionService(st, &config.Config{
		JWTSecret:          "secreto-de-prueba",
		JWTExpirationHours: 8,
	})
	t.Cleanup(svc.Close)
	return st, svc
}

func TestLoginCorrecto(t *testing.T) {
	_, svc := nuevaSesionDePrueba(t)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "demo@milista.app", Password: "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, 8*3600, resp.ExpiresIn)
	assert.Equal(t, "uid-demo", resp.User.UID)
	assert.Equal(t, "V1", resp.User.PlaceID)
	assert.Equal(t, "¡Login correcto!", resp.Status)

	// the token carries uid, email and place_id
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(resp.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secreto-de-prueba"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "uid-demo", claims["uid"])
	assert.Equal(t, "V1", claims["place_id"])

	lista, err := svc.ListaDe("uid-demo")
	require.NoError(t, err)
	require.NotNil(t, lista.Place())
	assert.Equal(t, "Bar Demo", lista.Place().Nombre)
}

func TestLoginCredencialesInvalidas(t *testing.T) {
	_, svc := nuevaSesionDePrueba(t)

	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "demo@milista.app", Password: "mala",
	})
	var authErr *store.AuthError
	require.ErrorAs(t, err, &authErr)

	_, ok := svc.Sesion("uid-demo")
	assert.False(t, ok, "un login fallido no crea sesion")
}

func TestLoginSinPerfilSigueAutenticado(t *testing.T) {
	st := memstore.New()
	require.NoError(t, st.CrearCuenta("sin-place@milista.app", "1234", "uid-suelto"))

	svc := NewSessionService(st, &config.Config{JWTSecret: "s", JWTExpirationHours: 1})
	defer svc.Close()

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "sin-place@milista.app", Password: "1234",
	})
	require.NoError(t, err, "fallar la resolucion del perfil no revierte la autenticacion")
	assert.Equal(t, "Usuario sin place asignado", resp.Status)
	assert.Empty(t, resp.User.PlaceID)

	ses, ok := svc.Sesion("uid-suelto")
	require.True(t, ok)
	assert.Equal(t, EstadoAutenticado, ses.Estado)

	_, err = svc.ListaDe("uid-suelto")
	assert.True(t, errors.Is(err, ErrSinLista))
}

func TestReLoginReemplazaSuscripcion(t *testing.T) {
	_, svc := nuevaSesionDePrueba(t)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "demo@milista.app", Password: "1234"})
	require.NoError(t, err)
	primera, err := svc.ListaDe("uid-demo")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "demo@milista.app", Password: "1234"})
	require.NoError(t, err)
	segunda, err := svc.ListaDe("uid-demo")
	require.NoError(t, err)
	assert.NotSame(t, primera, segunda)
}

func TestLogout(t *testing.T) {
	_, svc := nuevaSesionDePrueba(t)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "demo@milista.app", Password: "1234"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "uid-demo"))

	_, ok := svc.Sesion("uid-demo")
	assert.False(t, ok)
	_, err = svc.ListaDe("uid-demo")
	assert.True(t, errors.Is(err, ErrSinLista))
}
